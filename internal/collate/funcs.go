package collate

import (
	"fmt"

	lferrors "lightforge/internal/errors"
)

// Funcs assembles a collator from plain functions. A nil Eval or Predict
// runs Train; a nil Train fails with ErrNotImplemented.
type Funcs[X, R any] struct {
	Train   Func[X, R]
	Eval    Func[X, R]
	Predict Func[X, R]
}

func (f Funcs[X, R]) CollateTrain(batch []X) (R, error) {
	if f.Train == nil {
		var zero R
		return zero, fmt.Errorf("collate: train: %w", lferrors.ErrNotImplemented)
	}
	return f.Train(batch)
}

func (f Funcs[X, R]) CollateEval(batch []X) (R, error) {
	if f.Eval == nil {
		return f.CollateTrain(batch)
	}
	return f.Eval(batch)
}

func (f Funcs[X, R]) CollatePredict(batch []X) (R, error) {
	if f.Predict == nil {
		return f.CollateTrain(batch)
	}
	return f.Predict(batch)
}
