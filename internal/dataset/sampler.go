package dataset

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
)

// ErrEmptyEpoch is reported by an endless sampler when a full pass over
// every shard yields no sample that passes the filter.
var ErrEmptyEpoch = errors.New("sampler: no samples passed the filter in a full epoch")

// SamplerOptions configures the multi-root sampler.
type SamplerOptions struct {
	Roots      map[string][]string
	Seed       int64
	NumWorkers int
	PendingCap int
	// Epochs bounds the number of passes over every shard; 0 repeats
	// forever.
	Epochs int
	// Shuffle permutes the shards of each root per epoch using Seed.
	Shuffle bool
	// RequireLabels is forwarded to StreamShard.
	RequireLabels bool
	// Filter, when set, drops samples for which it returns false.
	Filter func(Sample) bool
}

// StartSampler launches the multi-root sampler pipeline. Samples arrive in
// job order regardless of which worker read the shard.
func StartSampler(parent context.Context, opts SamplerOptions) (<-chan Sample, <-chan error, error) {
	if len(opts.Roots) == 0 {
		return nil, nil, errors.New("sampler: no dataset roots provided")
	}
	total := 0
	for _, shards := range opts.Roots {
		total += len(shards)
	}
	if total == 0 {
		return nil, nil, errors.New("sampler: no shards discovered")
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	if opts.Epochs < 0 {
		opts.Epochs = 0
	}

	ctx, cancel := context.WithCancel(parent)

	jobs := make(chan shardJob, opts.NumWorkers)
	cursors := make(chan shardCursor, opts.NumWorkers)
	out := make(chan Sample, opts.NumWorkers*2)
	errCh := make(chan error, opts.NumWorkers)

	var rng *rand.Rand
	if opts.Shuffle {
		rng = rand.New(rand.NewSource(opts.Seed))
	}

	go produceJobs(ctx, jobs, opts.Roots, rng, opts.Epochs)

	stream := StreamOptions{PendingCap: opts.PendingCap, RequireLabels: opts.RequireLabels}
	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, cursors, stream)
		}()
	}

	go func() {
		wg.Wait()
		close(cursors)
	}()

	go func() {
		defer cancel()
		defer close(out)
		defer close(errCh)
		var epochLen int64
		if opts.Epochs == 0 {
			epochLen = int64(total)
		}
		runAggregator(ctx, cursors, out, errCh, opts.Filter, epochLen)
	}()

	return out, errCh, nil
}

type shardJob struct {
	id   int64
	root string
	path string
}

type shardCursor struct {
	id      int64
	samples <-chan Sample
	errCh   <-chan error
}

func worker(ctx context.Context, jobs <-chan shardJob, cursors chan<- shardCursor, opts StreamOptions) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			samples, errCh := StreamShard(ctx, job.path, opts)
			cursor := shardCursor{id: job.id, samples: samples, errCh: errCh}
			select {
			case <-ctx.Done():
				return
			case cursors <- cursor:
			}
		}
	}
}

// runAggregator forwards cursors in job order. With a non-zero epochLen it
// fails with ErrEmptyEpoch when an epoch of epochLen jobs sent nothing.
func runAggregator(ctx context.Context, cursors <-chan shardCursor, out chan<- Sample, errCh chan<- error, keep func(Sample) bool, epochLen int64) {
	pending := make(map[int64]shardCursor)
	var nextID int64
	epochSent := 0
	for {
		cursor, ok := pending[nextID]
		if !ok {
			if cursors == nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case c, open := <-cursors:
				if !open {
					cursors = nil
					continue
				}
				pending[c.id] = c
			}
			continue
		}

		sent, ok := forward(ctx, cursor, out, keep)
		if !ok {
			return
		}
		if err := <-cursor.errCh; err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
			return
		}
		delete(pending, nextID)
		nextID++

		epochSent += sent
		if epochLen > 0 && nextID%epochLen == 0 {
			if epochSent == 0 {
				errCh <- ErrEmptyEpoch
				return
			}
			epochSent = 0
		}
	}
}

// forward copies one shard's samples to out and returns how many it sent.
// ok is false when ctx ends first.
func forward(ctx context.Context, cursor shardCursor, out chan<- Sample, keep func(Sample) bool) (sent int, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return sent, false
		case sample, open := <-cursor.samples:
			if !open {
				return sent, true
			}
			if keep != nil && !keep(sample) {
				continue
			}
			select {
			case <-ctx.Done():
				return sent, false
			case out <- sample:
				sent++
			}
		}
	}
}

func produceJobs(ctx context.Context, jobs chan<- shardJob, roots map[string][]string, rng *rand.Rand, epochs int) {
	defer close(jobs)
	var jobID int64
	for epoch := 0; epochs == 0 || epoch < epochs; epoch++ {
		for _, entry := range buildRoundRobinOrder(roots, rng) {
			select {
			case <-ctx.Done():
				return
			case jobs <- shardJob{id: jobID, root: entry.root, path: entry.path}:
				jobID++
			}
		}
	}
}

type orderEntry struct {
	root string
	path string
}

// buildRoundRobinOrder interleaves shards across roots in sorted root
// order. A nil rng keeps each root's shards in their given order.
func buildRoundRobinOrder(roots map[string][]string, rng *rand.Rand) []orderEntry {
	rootNames := make([]string, 0, len(roots))
	copied := make(map[string][]string, len(roots))
	for root, shards := range roots {
		if len(shards) == 0 {
			continue
		}
		rootNames = append(rootNames, root)
		copied[root] = append([]string(nil), shards...)
	}
	sort.Strings(rootNames)
	if rng != nil {
		for _, root := range rootNames {
			shards := copied[root]
			rng.Shuffle(len(shards), func(i, j int) {
				shards[i], shards[j] = shards[j], shards[i]
			})
		}
	}
	var order []orderEntry
	for {
		advanced := false
		for _, root := range rootNames {
			shards := copied[root]
			if len(shards) == 0 {
				continue
			}
			order = append(order, orderEntry{root: root, path: shards[0]})
			copied[root] = shards[1:]
			advanced = true
		}
		if !advanced {
			break
		}
	}
	return order
}
