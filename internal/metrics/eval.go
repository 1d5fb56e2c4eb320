package metrics

// Accuracy accumulates loss and hit rate over an evaluation pass.
type Accuracy struct {
	examples int
	correct  int
	lossSum  float64
}

// Add records a batch with its mean loss, predictions and labels.
// Predictions without a matching label are ignored.
func (a *Accuracy) Add(meanLoss float64, predicted, labels []int) {
	n := len(predicted)
	if len(labels) < n {
		n = len(labels)
	}
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		if predicted[i] == labels[i] {
			a.correct++
		}
	}
	a.examples += n
	a.lossSum += meanLoss * float64(n)
}

// Summary reports the accumulated totals.
func (a *Accuracy) Summary() Summary {
	s := Summary{Examples: a.examples, Correct: a.correct}
	if a.examples > 0 {
		s.Loss = a.lossSum / float64(a.examples)
		s.Accuracy = float64(a.correct) / float64(a.examples)
	}
	return s
}

// Summary is the result of an evaluation pass.
type Summary struct {
	Examples int
	Correct  int
	Loss     float64
	Accuracy float64
}
