package main

import (
	"math"
	"testing"
)

func TestSummarize(t *testing.T) {
	s := summarize([]float64{10, 20, 30, 40, 50})

	if s.Min != 10 || s.Max != 50 {
		t.Fatalf("min/max = %v/%v", s.Min, s.Max)
	}
	if s.Avg != 30 {
		t.Fatalf("avg = %v, want 30", s.Avg)
	}
	if s.P50 != 30 {
		t.Fatalf("p50 = %v, want 30", s.P50)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	if s.Min != 0 || s.Max != 0 || s.Avg != 0 {
		t.Fatalf("empty summary must be zero: %+v", s)
	}
}

func TestPercentileInterpolates(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	got := percentile(sorted, 50)
	if math.Abs(got-2.5) > 1e-9 {
		t.Fatalf("p50 = %v, want 2.5", got)
	}
	if percentile(sorted, 100) != 4 {
		t.Fatalf("p100 = %v, want 4", percentile(sorted, 100))
	}
	if percentile(nil, 50) != 0 {
		t.Fatal("empty percentile must be 0")
	}
}
