package model

import "gonum.org/v1/gonum/mat"

// Batch represents a minibatch of pooled features and labels. Labels is
// nil for prediction batches.
type Batch struct {
	Keys   []string
	Inputs *mat.Dense
	Labels []int
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	if b.Inputs == nil {
		return 0
	}
	rows, _ := b.Inputs.Dims()
	return rows
}

// Model defines the functionality the training loop needs in each mode.
type Model interface {
	TrainStep(batch Batch) float64
	Loss(batch Batch) float64
	Predict(inputs *mat.Dense) []int
}
