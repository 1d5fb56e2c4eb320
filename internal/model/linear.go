package model

import (
	"fmt"
	"io"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a softmax classifier over pooled feature vectors.
type Linear struct {
	numClasses int
	inputSize  int
	weights    *mat.Dense    // numClasses x inputSize
	bias       *mat.VecDense // numClasses
	lr         float64
}

// NewLinear constructs the model with random initialization.
func NewLinear(numClasses, inputSize int, lr float64, seed int64) *Linear {
	if numClasses <= 0 {
		numClasses = 10
	}
	if inputSize <= 0 {
		inputSize = 16
	}
	if lr <= 0 {
		lr = 0.01
	}
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, numClasses*inputSize)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &Linear{
		numClasses: numClasses,
		inputSize:  inputSize,
		weights:    mat.NewDense(numClasses, inputSize, data),
		bias:       mat.NewVecDense(numClasses, nil),
		lr:         lr,
	}
}

// NumClasses returns the size of the output layer.
func (m *Linear) NumClasses() int { return m.numClasses }

// InputSize returns the expected feature width.
func (m *Linear) InputSize() int { return m.inputSize }

// TrainStep executes one SGD pass over the batch and returns average loss.
func (m *Linear) TrainStep(batch Batch) float64 {
	return m.run(batch, true)
}

// Loss returns the average cross-entropy without updating weights.
func (m *Linear) Loss(batch Batch) float64 {
	return m.run(batch, false)
}

// Predict returns the argmax class for every row of inputs. Rows of the
// wrong width predict -1.
func (m *Linear) Predict(inputs *mat.Dense) []int {
	if inputs == nil {
		return nil
	}
	rows, cols := inputs.Dims()
	out := make([]int, rows)
	if cols != m.inputSize {
		for i := range out {
			out[i] = -1
		}
		return out
	}
	logits := mat.NewVecDense(m.numClasses, nil)
	for i := 0; i < rows; i++ {
		m.logits(logits, inputs.RowView(i))
		out[i] = floats.MaxIdx(logits.RawVector().Data)
	}
	return out
}

func (m *Linear) run(batch Batch, update bool) float64 {
	n := batch.Len()
	if n == 0 || len(batch.Labels) < n {
		return 0
	}
	if _, cols := batch.Inputs.Dims(); cols != m.inputSize {
		return 0
	}
	logits := mat.NewVecDense(m.numClasses, nil)
	totalLoss := 0.0
	for i := 0; i < n; i++ {
		input := batch.Inputs.RowView(i)
		label := m.clampLabel(batch.Labels[i])

		m.logits(logits, input)
		probs := softmax(logits.RawVector().Data)
		totalLoss += -math.Log(math.Max(probs[label], 1e-9))
		if !update {
			continue
		}

		probs[label] -= 1
		grad := mat.NewVecDense(m.numClasses, probs)
		m.bias.AddScaledVec(m.bias, -m.lr, grad)
		m.weights.RankOne(m.weights, -m.lr, grad, input)
	}
	return totalLoss / float64(n)
}

func (m *Linear) logits(dst *mat.VecDense, input mat.Vector) {
	dst.MulVec(m.weights, input)
	dst.AddVec(dst, m.bias)
}

func (m *Linear) clampLabel(label int) int {
	return ClampLabel(label, m.numClasses)
}

// ClampLabel wraps label into [0, numClasses) modulo numClasses.
func ClampLabel(label, numClasses int) int {
	label %= numClasses
	if label < 0 {
		label += numClasses
	}
	return label
}

// Save writes the weights and bias in gonum's binary format.
func (m *Linear) Save(w io.Writer) error {
	if _, err := m.weights.MarshalBinaryTo(w); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	if _, err := m.bias.MarshalBinaryTo(w); err != nil {
		return fmt.Errorf("save bias: %w", err)
	}
	return nil
}

// Load reads a model written by Save. lr applies to further training.
func Load(r io.Reader, lr float64) (*Linear, error) {
	var weights mat.Dense
	if _, err := weights.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	var bias mat.VecDense
	if _, err := bias.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("load bias: %w", err)
	}
	classes, inputSize := weights.Dims()
	if bias.Len() != classes {
		return nil, fmt.Errorf("load: bias has %d entries for %d classes", bias.Len(), classes)
	}
	if lr <= 0 {
		lr = 0.01
	}
	return &Linear{
		numClasses: classes,
		inputSize:  inputSize,
		weights:    &weights,
		bias:       &bias,
		lr:         lr,
	}, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := floats.Max(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
