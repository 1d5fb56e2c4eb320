package dataset

import (
	"context"
	"errors"
	"io"
)

// NextBatch gathers up to size samples. When the stream ends it returns
// whatever was collected; once nothing is left it returns io.EOF.
func NextBatch(ctx context.Context, samples <-chan Sample, errs <-chan error, size int) ([]Sample, error) {
	if size <= 0 {
		return nil, errors.New("dataset: batch size must be > 0")
	}
	batch := make([]Sample, 0, size)
	for len(batch) < size {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case sample, ok := <-samples:
			if !ok {
				if err := drainErr(errs); err != nil {
					return nil, err
				}
				if len(batch) == 0 {
					return nil, io.EOF
				}
				return batch, nil
			}
			batch = append(batch, sample)
		}
	}
	return batch, nil
}

func drainErr(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
