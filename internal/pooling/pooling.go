// Package pooling reduces per-token matrices to one vector per example.
//
// Every function takes a batch of B token matrices, each T x H, and a
// B x T mask whose non-zero entries mark real tokens. The result is a
// B x H matrix. Inputs are never modified.
package pooling

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	lferrors "lightforge/internal/errors"
)

// Method names a registered pooling function.
type Method string

const (
	CLS  Method = "cls"
	Mean Method = "mean"
	Max  Method = "max"
)

// Func is the signature shared by all pooling functions.
type Func func(input []*mat.Dense, mask *mat.Dense) (*mat.Dense, error)

const (
	// minDenominator keeps the mean finite for rows without real tokens.
	minDenominator = 1e-9
	// maskedValue replaces padding positions before a max reduction.
	maskedValue = -1e9
)

var registry = [...]struct {
	method Method
	fn     Func
}{
	{CLS, ClsPool},
	{Mean, MeanPool},
	{Max, MaxPool},
}

// Methods returns the registered method names in lookup order.
func Methods() []string {
	out := make([]string, len(registry))
	for i, entry := range registry {
		out[i] = string(entry.method)
	}
	return out
}

// Get returns the pooling function registered under name.
func Get(name string) (Func, error) {
	for _, entry := range registry {
		if string(entry.method) == name {
			return entry.fn, nil
		}
	}
	return nil, lferrors.Invalid("pooling method", name, Methods())
}

// ClsPool selects the first token of every example. The mask is only
// checked for shape.
func ClsPool(input []*mat.Dense, mask *mat.Dense) (*mat.Dense, error) {
	hidden, err := checkShapes(input, mask)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(input), hidden, nil)
	for b, tokens := range input {
		out.SetRow(b, mat.Row(nil, 0, tokens))
	}
	return out, nil
}

// MeanPool averages the masked tokens of every example.
func MeanPool(input []*mat.Dense, mask *mat.Dense) (*mat.Dense, error) {
	hidden, err := checkShapes(input, mask)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(input), hidden, nil)
	sum := mat.NewVecDense(hidden, nil)
	for b, tokens := range input {
		weights := mask.RowView(b)
		sum.MulVec(tokens.T(), weights)
		denom := math.Max(mat.Sum(weights), minDenominator)
		sum.ScaleVec(1/denom, sum)
		out.SetRow(b, sum.RawVector().Data)
	}
	return out, nil
}

// MaxPool takes the element-wise max over the masked tokens of every
// example. Rows without real tokens pool to maskedValue.
func MaxPool(input []*mat.Dense, mask *mat.Dense) (*mat.Dense, error) {
	hidden, err := checkShapes(input, mask)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(input), hidden, nil)
	for b, tokens := range input {
		out.SetRow(b, maskedColumnMax(tokens, mask.RawRowView(b)))
	}
	return out, nil
}

// CumMax replaces every token with the running max up to its position,
// then max-pools the result.
func CumMax(input []*mat.Dense, mask *mat.Dense) (*mat.Dense, error) {
	if _, err := checkShapes(input, mask); err != nil {
		return nil, err
	}
	running := make([]*mat.Dense, len(input))
	for b, tokens := range input {
		running[b] = cumulativeMax(tokens)
	}
	return MaxPool(running, mask)
}

func maskedColumnMax(tokens *mat.Dense, keep []float64) []float64 {
	_, hidden := tokens.Dims()
	col := make([]float64, len(keep))
	out := make([]float64, hidden)
	for h := 0; h < hidden; h++ {
		mat.Col(col, h, tokens)
		for t, k := range keep {
			if k == 0 {
				col[t] = maskedValue
			}
		}
		out[h] = floats.Max(col)
	}
	return out
}

func cumulativeMax(tokens *mat.Dense) *mat.Dense {
	steps, hidden := tokens.Dims()
	out := mat.DenseCopyOf(tokens)
	for t := 1; t < steps; t++ {
		prev := out.RawRowView(t - 1)
		cur := out.RawRowView(t)
		for h := 0; h < hidden; h++ {
			cur[h] = math.Max(cur[h], prev[h])
		}
	}
	return out
}

func checkShapes(input []*mat.Dense, mask *mat.Dense) (int, error) {
	if len(input) == 0 {
		return 0, lferrors.Shapef("empty batch")
	}
	if mask == nil {
		return 0, lferrors.Shapef("mask is nil")
	}
	rows, steps := mask.Dims()
	if rows != len(input) {
		return 0, lferrors.Shapef("mask has %d rows, batch has %d examples", rows, len(input))
	}
	var hidden int
	for b, tokens := range input {
		if tokens == nil {
			return 0, lferrors.Shapef("example %d has no tokens", b)
		}
		t, h := tokens.Dims()
		if t != steps {
			return 0, lferrors.Shapef("example %d has %d tokens, mask has %d", b, t, steps)
		}
		if b == 0 {
			hidden = h
		} else if h != hidden {
			return 0, lferrors.Shapef("example %d has hidden size %d, want %d", b, h, hidden)
		}
	}
	return hidden, nil
}
