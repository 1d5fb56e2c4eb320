// Package collate turns a batch of examples into a model-ready value in
// two stages: every example is encoded, then the encoded batch is
// collated by the behaviour selected for the collator's mode.
//
// Concrete collators implement TrainCollator and may additionally
// implement EvalCollator and PredictCollator. Modes without their own
// hook run the train hook.
package collate

import (
	"fmt"

	lferrors "lightforge/internal/errors"
	"lightforge/internal/mode"
)

// Func collates an encoded batch.
type Func[X, R any] func(batch []X) (R, error)

// TrainCollator is the primary hook every collator provides.
type TrainCollator[X, R any] interface {
	CollateTrain(batch []X) (R, error)
}

// EvalCollator overrides the eval behaviour.
type EvalCollator[X, R any] interface {
	CollateEval(batch []X) (R, error)
}

// PredictCollator overrides the predict behaviour.
type PredictCollator[X, R any] interface {
	CollatePredict(batch []X) (R, error)
}

// Encoder transforms a single example.
type Encoder[E, X any] interface {
	Encode(example E) (X, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc[E, X any] func(example E) (X, error)

// Encode calls f(example).
func (f EncoderFunc[E, X]) Encode(example E) (X, error) { return f(example) }

// Unimplemented can be embedded by collators that are built up hook by
// hook; its train hook fails with ErrNotImplemented.
type Unimplemented[X, R any] struct{}

// CollateTrain always fails.
func (Unimplemented[X, R]) CollateTrain([]X) (R, error) {
	var zero R
	return zero, fmt.Errorf("collate: train: %w", lferrors.ErrNotImplemented)
}

// Collator runs the encode and collate stages for a fixed mode.
type Collator[E, X, R any] struct {
	mode    mode.Mode
	encoder Encoder[E, X]
	table   *[mode.Count]Func[X, R]
}

// New returns a collator whose encode stage is the identity, unless hooks
// also implements Encoder[T, T].
func New[T, R any](m mode.Mode, hooks TrainCollator[T, R]) *Collator[T, T, R] {
	enc, ok := hooks.(Encoder[T, T])
	if !ok {
		enc = EncoderFunc[T, T](identity[T])
	}
	return &Collator[T, T, R]{mode: m, encoder: enc, table: buildTable(hooks)}
}

// NewEncoded returns a collator that encodes examples with enc before
// collating them with hooks. A nil enc falls back to hooks when it
// implements Encoder[E, X].
func NewEncoded[E, X, R any](m mode.Mode, hooks TrainCollator[X, R], enc Encoder[E, X]) (*Collator[E, X, R], error) {
	if enc == nil {
		var ok bool
		if enc, ok = hooks.(Encoder[E, X]); !ok {
			return nil, fmt.Errorf("collate: encoder: %w", lferrors.ErrNotImplemented)
		}
	}
	return &Collator[E, X, R]{mode: m, encoder: enc, table: buildTable(hooks)}, nil
}

// buildTable fixes the mode-to-hook mapping. Eval and predict default to
// the train hook.
func buildTable[X, R any](hooks TrainCollator[X, R]) *[mode.Count]Func[X, R] {
	if hooks == nil {
		hooks = Unimplemented[X, R]{}
	}
	var table [mode.Count]Func[X, R]
	table[mode.Train] = hooks.CollateTrain
	table[mode.Eval] = hooks.CollateTrain
	table[mode.Predict] = hooks.CollateTrain
	if h, ok := hooks.(EvalCollator[X, R]); ok {
		table[mode.Eval] = h.CollateEval
	}
	if h, ok := hooks.(PredictCollator[X, R]); ok {
		table[mode.Predict] = h.CollatePredict
	}
	return &table
}

// Mode returns the mode fixed at construction.
func (c *Collator[E, X, R]) Mode() mode.Mode { return c.mode }

// WithMode returns a collator sharing c's hooks and encoder but running
// in m. c itself is unchanged.
func (c *Collator[E, X, R]) WithMode(m mode.Mode) *Collator[E, X, R] {
	next := *c
	next.mode = m
	return &next
}

// Encode runs the encode stage on one example.
func (c *Collator[E, X, R]) Encode(example E) (X, error) {
	return c.encoder.Encode(example)
}

// EncodeBatch encodes every example, preserving order.
func (c *Collator[E, X, R]) EncodeBatch(batch []E) ([]X, error) {
	out := make([]X, len(batch))
	for i, example := range batch {
		x, err := c.encoder.Encode(example)
		if err != nil {
			return nil, fmt.Errorf("collate: encode example %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// Collate encodes batch and collates the result for c's mode.
func (c *Collator[E, X, R]) Collate(batch []E) (R, error) {
	fn, err := c.dispatch()
	if err != nil {
		var zero R
		return zero, err
	}
	encoded, err := c.EncodeBatch(batch)
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(encoded)
}

// CollateEncoded runs only the collate stage.
func (c *Collator[E, X, R]) CollateEncoded(encoded []X) (R, error) {
	fn, err := c.dispatch()
	if err != nil {
		var zero R
		return zero, err
	}
	return fn(encoded)
}

func (c *Collator[E, X, R]) dispatch() (Func[X, R], error) {
	if !c.mode.Valid() {
		return nil, lferrors.Invalid("mode", c.mode.String(), mode.Names())
	}
	return c.table[c.mode], nil
}

func identity[T any](example T) (T, error) { return example, nil }
