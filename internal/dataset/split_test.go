package dataset

import (
	"fmt"
	"testing"
)

func TestInHoldoutStable(t *testing.T) {
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("%06d", i)
		if InHoldout(key, 30) != InHoldout(key, 30) {
			t.Fatalf("assignment for %s not stable", key)
		}
	}
}

func TestInHoldoutBounds(t *testing.T) {
	if InHoldout("anything", 0) {
		t.Fatal("0% holdout should hold nothing out")
	}
	if !InHoldout("anything", 100) {
		t.Fatal("100% holdout should hold everything out")
	}
}

func TestInHoldoutProportion(t *testing.T) {
	held := 0
	const n = 5000
	for i := 0; i < n; i++ {
		if InHoldout(fmt.Sprintf("sample-%d", i), 20) {
			held++
		}
	}
	frac := float64(held) / n
	if frac < 0.15 || frac > 0.25 {
		t.Fatalf("holdout fraction %.3f far from 0.20", frac)
	}
}

func TestInHoldoutMonotonic(t *testing.T) {
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k%d", i)
		if InHoldout(key, 10) && !InHoldout(key, 40) {
			t.Fatalf("%s held out at 10%% but not 40%%", key)
		}
	}
}

func TestHoldoutFilterPartitions(t *testing.T) {
	train := HoldoutFilter(25, false)
	eval := HoldoutFilter(25, true)
	for i := 0; i < 100; i++ {
		s := Sample{Key: fmt.Sprintf("x%d", i)}
		if train(s) == eval(s) {
			t.Fatalf("sample %s in both or neither split", s.Key)
		}
	}
}
