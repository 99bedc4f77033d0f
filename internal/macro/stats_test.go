package macro

import (
	"math"
	"testing"
)

func TestZScoresWindowIncludesCurrentValue(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	got := ZScores(values, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 z-scores, got %d", len(got))
	}
	if got[0].Index != 2 {
		t.Errorf("expected first z-score at index 2, got %d", got[0].Index)
	}

	// window {1,2,3}: mean 2, pop std sqrt(2/3)
	want := (3 - 2) / math.Sqrt(2.0/3.0)
	if math.Abs(got[0].Z-want) > 1e-9 {
		t.Errorf("z = %v, want %v", got[0].Z, want)
	}
}

func TestZScoresClip(t *testing.T) {
	values := make([]float64, 60)
	values[59] = 1000

	got := ZScores(values, 60)
	if len(got) != 1 {
		t.Fatalf("expected 1 z-score, got %d", len(got))
	}
	if got[0].Z != ZScoreClip {
		t.Errorf("expected clipped z %v, got %v", ZScoreClip, got[0].Z)
	}
}

func TestZScoresShortHistory(t *testing.T) {
	if got := ZScores([]float64{1, 2}, 60); got != nil {
		t.Errorf("expected nil for short history, got %v", got)
	}
}

func TestRollingStatsPopulation(t *testing.T) {
	stats := RollingStats([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	last := stats[len(stats)-1]

	if last.Mean != 5 {
		t.Errorf("mean = %v, want 5", last.Mean)
	}
	if math.Abs(last.StdDev-2) > 1e-12 {
		t.Errorf("population std = %v, want 2", last.StdDev)
	}
	if last.Min != 2 || last.Max != 9 {
		t.Errorf("min/max = %v/%v, want 2/9", last.Min, last.Max)
	}
	if !last.Full(8) {
		t.Errorf("last window should be full, count = %d", last.Count)
	}
}

func TestRollingStatsRequiresFullWindow(t *testing.T) {
	values := []float64{1, 5, 1, 5, 1, math.NaN(), 5, 1, 5}
	stats := RollingStats(values, 4)

	tests := []struct {
		index int
		full  bool
		std   float64
	}{
		{0, false, 0},
		{2, false, 0},
		{3, true, 2},
		{4, true, 2},
		{5, false, 0}, // missing value inside the window
		{8, false, 0}, // window 5..8 still holds the gap
	}

	for _, tt := range tests {
		s := stats[tt.index]
		if s.Full(4) != tt.full {
			t.Errorf("stats[%d].Full = %v, want %v", tt.index, s.Full(4), tt.full)
		}
		if math.Abs(s.StdDev-tt.std) > 1e-12 {
			t.Errorf("stats[%d].StdDev = %v, want %v", tt.index, s.StdDev, tt.std)
		}
	}
}

func TestMomentum(t *testing.T) {
	got := Momentum([]float64{5, 6, 7, 4, math.NaN()}, 3)
	want := []float64{0, 0, 0, -1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("momentum[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1},
		{"zero variance", []float64{1, 1, 1, 1}, []float64{1, 2, 3, 4}, 0},
		{"too short", []float64{1, 2}, []float64{2, 1}, 0},
		{"length mismatch", []float64{1, 2, 3}, []float64{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Correlation(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Correlation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollingCorrelationRequiresFullWindow(t *testing.T) {
	a := []float64{math.NaN(), 1, 2, 3, 4, 5, 6}
	b := []float64{math.NaN(), 2, 4, 6, 8, 10, 12}

	got := RollingCorrelation(a, b, 4)
	for i := 0; i < 4; i++ {
		if got[i] != 0 {
			t.Errorf("corr[%d] = %v, want 0 before a full window of pairs", i, got[i])
		}
	}
	for i := 4; i < len(got); i++ {
		if math.Abs(got[i]-1) > 1e-9 {
			t.Errorf("corr[%d] = %v, want 1", i, got[i])
		}
	}
}
