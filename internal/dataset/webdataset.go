package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Sample represents a record from a WebDataset shard. HasLabel is false
// when the shard carries no .cls entry for Key.
type Sample struct {
	Key      string
	Image    []byte
	Label    int
	HasLabel bool
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamOptions tunes StreamShard.
type StreamOptions struct {
	PendingCap int
	// RequireLabels rejects shards whose images have no .cls entry. When
	// false, an image without a label is emitted unlabelled as soon as the
	// archive moves on to another key.
	RequireLabels bool
}

// StreamShard streams samples from the shard at path.
func StreamShard(ctx context.Context, path string, opts StreamOptions) (<-chan Sample, <-chan error) {
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	out := make(chan Sample)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open shard: %w", err)
			return
		}
		defer f.Close()

		emit := func(sample Sample) bool {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return false
			case out <- sample:
				return true
			}
		}

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)
		var lastKey string

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- fmt.Errorf("read tar: %w", err)
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, filepath.Ext(name))

			// WebDataset keeps the files of one key adjacent, so a key
			// change means the previous image will not get a label.
			if !opts.RequireLabels && key != lastKey {
				if prev := pending[lastKey]; prev != nil && len(prev.image) > 0 && prev.label == nil {
					delete(pending, lastKey)
					if !emit(prev.sample(lastKey)) {
						return
					}
				}
			}

			part := pending[key]
			if part == nil {
				part = &partial{}
			}
			switch ext {
			case ".jpg", ".jpeg", ".png":
				data, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read image %s: %w", name, err)
					return
				}
				part.image = data
			case ".cls":
				payload, err := io.ReadAll(tr)
				if err != nil {
					errCh <- fmt.Errorf("read label %s: %w", name, err)
					return
				}
				label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- fmt.Errorf("parse label %s: %w", name, err)
					return
				}
				part.label = &label
			default:
				continue
			}
			pending[key] = part
			lastKey = key

			if len(pending) > opts.PendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part.ready() {
				delete(pending, key)
				if !emit(part.sample(key)) {
					return
				}
			}
		}

		if len(pending) == 0 {
			return
		}
		if opts.RequireLabels {
			errCh <- fmt.Errorf("%d samples incomplete", len(pending))
			return
		}
		// Trailing unlabelled images, in key order.
		keys := make([]string, 0, len(pending))
		for key, part := range pending {
			if len(part.image) > 0 {
				keys = append(keys, key)
			}
		}
		if len(keys) != len(pending) {
			errCh <- fmt.Errorf("%d labels without images", len(pending)-len(keys))
			return
		}
		sort.Strings(keys)
		for _, key := range keys {
			if !emit(pending[key].sample(key)) {
				return
			}
		}
	}()

	return out, errCh
}

type partial struct {
	image []byte
	label *int
}

func (p *partial) ready() bool {
	return len(p.image) > 0 && p.label != nil
}

func (p *partial) sample(key string) Sample {
	s := Sample{Key: key, Image: p.image}
	if p.label != nil {
		s.Label = *p.label
		s.HasLabel = true
	}
	return s
}
