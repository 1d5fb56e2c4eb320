package metrics

import "time"

// Window accumulates timing stats across multiple steps.
type Window struct {
	examples int
	data     time.Duration
	collate  time.Duration
	compute  time.Duration
	steps    int
	dropped  int
	lastLoss float64
}

// Step is one measurement recorded into a Window.
type Step struct {
	Examples int
	Dropped  int
	Data     time.Duration
	Collate  time.Duration
	Compute  time.Duration
	Loss     float64
}

// Record adds a new measurement to the window.
func (w *Window) Record(s Step) {
	w.examples += s.Examples
	w.dropped += s.Dropped
	w.data += s.Data
	w.collate += s.Collate
	w.compute += s.Compute
	w.steps++
	w.lastLoss = s.Loss
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	total := w.data + w.collate + w.compute
	if total > 0 {
		snap.ExamplesPerSec = float64(w.examples) / total.Seconds()
	}
	if w.steps > 0 {
		steps := float64(w.steps)
		snap.AvgDataMS = (w.data.Seconds() * 1000) / steps
		snap.AvgCollateMS = (w.collate.Seconds() * 1000) / steps
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / steps
	}
	snap.Dropped = w.dropped
	snap.LastLoss = w.lastLoss

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	ExamplesPerSec float64
	AvgDataMS      float64
	AvgCollateMS   float64
	AvgComputeMS   float64
	Dropped        int
	LastLoss       float64
}
