package macro

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Stats trailing-window summary of one indicator
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// ZScore z-score of one observation against its trailing window
type ZScore struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Z     float64 `json:"z"`
}

// ZScoreClip bounds every z-score to ±3
const ZScoreClip = 3.0

// finite drops NaN entries (missing observations)
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// popMeanStd returns the population mean and stdDev, zero for degenerate input
func popMeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if math.IsNaN(mean) {
		mean = 0
	}
	if math.IsNaN(std) || math.IsInf(std, 0) {
		std = 0
	}
	return mean, std
}

// window returns values[max(0,i-size+1)..i]
func window(values []float64, i, size int) []float64 {
	start := i - size + 1
	if start < 0 {
		start = 0
	}
	return values[start : i+1]
}

// Summarize computes mean/stdDev/min/max over the finite values
func Summarize(values []float64) Stats {
	vals := finite(values)
	if len(vals) == 0 {
		return Stats{}
	}

	s := Stats{Count: len(vals), Min: vals[0], Max: vals[0]}
	for _, v := range vals {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean, s.StdDev = popMeanStd(vals)
	if len(vals) < 2 {
		s.StdDev = 0
	}
	return s
}

// RollingStats trailing-window statistics for every index.
// Indices without a full window of observations get zero Stats (Count 0).
func RollingStats(values []float64, size int) []Stats {
	out := make([]Stats, len(values))
	if size <= 0 {
		return out
	}
	for i := size - 1; i < len(values); i++ {
		win := finite(window(values, i, size))
		if len(win) < size {
			continue
		}
		out[i] = Summarize(win)
	}
	return out
}

// Full reports whether s covers a whole window of the given size
func (s Stats) Full(size int) bool {
	return size > 0 && s.Count >= size
}

// ZScores computes clip((x-mean)/std, ±3) over a trailing window that
// includes the current value. Indices before the window fills are omitted.
func ZScores(values []float64, size int) []ZScore {
	if size <= 0 || len(values) < size {
		return nil
	}

	out := make([]ZScore, 0, len(values)-size+1)
	for i := size - 1; i < len(values); i++ {
		x := values[i]
		if math.IsNaN(x) {
			continue
		}
		win := finite(window(values, i, size))
		if len(win) < size {
			continue
		}
		mean, std := popMeanStd(win)
		z := 0.0
		if std > 0 {
			z = clip((x-mean)/std, -ZScoreClip, ZScoreClip)
		}
		out = append(out, ZScore{Index: i, Value: x, Z: z})
	}
	return out
}

// Momentum absolute change values[t]-values[t-lag] (0 while warming up or missing)
func Momentum(values []float64, lag int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < lag {
			continue
		}
		cur, prev := values[i], values[i-lag]
		if math.IsNaN(cur) || math.IsNaN(prev) {
			continue
		}
		out[i] = cur - prev
	}
	return out
}

// Correlation Pearson correlation, 0 when undefined
func Correlation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 3 {
		return 0
	}
	if _, sa := popMeanStd(a); sa == 0 {
		return 0
	}
	if _, sb := popMeanStd(b); sb == 0 {
		return 0
	}

	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return clip(c, -1, 1)
}

// RollingCorrelation trailing-window Pearson correlation of aligned series.
// Indices without a full window of complete pairs are 0.
func RollingCorrelation(a, b []float64, size int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	out := make([]float64, n)
	if size <= 0 {
		return out
	}
	for i := size - 1; i < n; i++ {
		wa, wb := window(a[:n], i, size), window(b[:n], i, size)
		xs := make([]float64, 0, size)
		ys := make([]float64, 0, size)
		for j := range wa {
			if math.IsNaN(wa[j]) || math.IsNaN(wb[j]) {
				break
			}
			xs = append(xs, wa[j])
			ys = append(ys, wb[j])
		}
		if len(xs) < size {
			continue
		}
		out[i] = Correlation(xs, ys)
	}
	return out
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
