package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/macro"
)

// ReturnSeries monthly returns per fund code, keyed by YYYY-MM
type ReturnSeries struct {
	Values map[string]map[string]float64 `json:"returns"`
}

// NewReturnSeries creates an empty series
func NewReturnSeries() *ReturnSeries {
	return &ReturnSeries{Values: make(map[string]map[string]float64)}
}

// Set stores one monthly return
func (s *ReturnSeries) Set(code, month string, r float64) {
	if s.Values == nil {
		s.Values = make(map[string]map[string]float64)
	}
	if s.Values[code] == nil {
		s.Values[code] = make(map[string]float64)
	}
	s.Values[code][month] = r
}

// Get the return of code in month; ok is false when missing
func (s *ReturnSeries) Get(code, month string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	r, ok := s.Values[code][month]
	return r, ok
}

// Codes sorted fund codes
func (s *ReturnSeries) Codes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Values))
	for code := range s.Values {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Months sorted union of months across all codes
func (s *ReturnSeries) Months() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, byMonth := range s.Values {
		for m := range byMonth {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// DecodeReturns reads {"returns": {"CODE": {"2020-01": 0.01}}}.
// Month keys may be YYYY-MM or YYYY-MM-DD; non-finite values are rejected.
func DecodeReturns(r io.Reader) (*ReturnSeries, error) {
	var raw ReturnSeries
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode returns: %v", ErrInvalidInput, err)
	}

	out := NewReturnSeries()
	for code, byMonth := range raw.Values {
		for key, v := range byMonth {
			m, err := macro.ParseMonth(key)
			if err != nil {
				return nil, fmt.Errorf("%w: returns %s: %v", ErrInvalidInput, code, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: returns %s %s not finite", ErrInvalidInput, code, key)
			}
			out.Set(code, macro.MonthKey(m), v)
		}
	}
	return out, nil
}

// LoadReturnsFile reads a returns JSON file
func LoadReturnsFile(path string) (*ReturnSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open returns file: %w", err)
	}
	defer f.Close()
	return DecodeReturns(f)
}

// DecodeFunds reads a JSON array of funds
func DecodeFunds(r io.Reader) ([]allocation.Fund, error) {
	var funds []allocation.Fund
	if err := json.NewDecoder(r).Decode(&funds); err != nil {
		return nil, fmt.Errorf("%w: decode funds: %v", ErrInvalidInput, err)
	}
	for i, f := range funds {
		if f.Code == "" {
			return nil, fmt.Errorf("%w: fund %d has no code", ErrInvalidInput, i)
		}
	}
	return funds, nil
}

// LoadFundsFile reads a funds JSON file
func LoadFundsFile(path string) ([]allocation.Fund, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open funds file: %w", err)
	}
	defer f.Close()
	return DecodeFunds(f)
}

// Fund codes produced by MacroAssetReturns
const (
	CodeEquity     = "EQUITY"
	CodeGold       = "GOLD"
	CodeDebt       = "DEBT"
	CodeHybrid     = "HYBRID"
	CodeDebtLong   = "DEBT_LONG"
	CodeDebtMedium = "DEBT_MEDIUM"
	CodeDebtShort  = "DEBT_SHORT"
)

// MacroAssetReturns derives index returns from the macro file itself:
//   - EQUITY: % change of the equity index
//   - GOLD: % change of goldPrice×fxRate (fxRate defaults to 1)
//   - DEBT: gSecYield/1200, the yield level as a monthly carry (no duration)
//
// DEBT_LONG/DEBT_MEDIUM/DEBT_SHORT repeat DEBT and HYBRID is half EQUITY,
// half DEBT, so every asset class has a series. The first month has no
// price returns.
func MacroAssetReturns(enriched []macro.Enriched) *ReturnSeries {
	out := NewReturnSeries()
	prevGold := math.NaN()

	for i, e := range enriched {
		month := monthOf(e.Record)

		goldLocal := math.NaN()
		if e.GoldPrice != nil {
			fx := 1.0
			if e.FXRate != nil && *e.FXRate > 0 {
				fx = *e.FXRate
			}
			goldLocal = *e.GoldPrice * fx
		}

		var equity float64
		hasEquity := i > 0 && e.SP500 != nil
		if hasEquity {
			equity = e.Derived.EquityReturn
			out.Set(CodeEquity, month, equity)
		}
		if i > 0 && !math.IsNaN(goldLocal) && !math.IsNaN(prevGold) && prevGold != 0 {
			out.Set(CodeGold, month, goldLocal/prevGold-1)
		}
		if e.GSecYield != nil {
			debt := *e.GSecYield / 1200
			for _, code := range []string{CodeDebt, CodeDebtLong, CodeDebtMedium, CodeDebtShort} {
				out.Set(code, month, debt)
			}
			if hasEquity {
				out.Set(CodeHybrid, month, 0.5*equity+0.5*debt)
			}
		}

		prevGold = goldLocal
	}
	return out
}

// monthOf normalises a record date to YYYY-MM, keeping it as-is when unparseable
func monthOf(r macro.Record) string {
	m, err := r.Month()
	if err != nil {
		return r.Date
	}
	return macro.MonthKey(m)
}

// MacroFunds one synthetic fund per asset class, matching MacroAssetReturns
func MacroFunds() []allocation.Fund {
	return []allocation.Fund{
		{Code: CodeEquity, Name: "Equity index", AssetClass: allocation.Equity},
		{Code: CodeHybrid, Name: "Balanced equity/debt", AssetClass: allocation.Hybrid},
		{Code: CodeDebtLong, Name: "Long government debt", AssetClass: allocation.DebtLong},
		{Code: CodeDebtMedium, Name: "Medium government debt", AssetClass: allocation.DebtMedium},
		{Code: CodeDebtShort, Name: "Short government debt", AssetClass: allocation.DebtShort},
		{Code: CodeGold, Name: "Gold (local currency)", AssetClass: allocation.Gold},
	}
}

// MacroBenchmark equity index level per month, for use as Input.Benchmark
func MacroBenchmark(enriched []macro.Enriched) map[string]float64 {
	out := make(map[string]float64, len(enriched))
	for _, e := range enriched {
		if e.SP500 != nil && *e.SP500 > 0 {
			out[monthOf(e.Record)] = *e.SP500
		}
	}
	return out
}

// DecodeBenchmark reads {"2020-01": 100.0, ...}
func DecodeBenchmark(r io.Reader) (map[string]float64, error) {
	var raw map[string]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode benchmark: %v", ErrInvalidInput, err)
	}
	out := make(map[string]float64, len(raw))
	for key, v := range raw {
		m, err := macro.ParseMonth(key)
		if err != nil {
			return nil, fmt.Errorf("%w: benchmark: %v", ErrInvalidInput, err)
		}
		out[macro.MonthKey(m)] = v
	}
	return out, nil
}

// LoadBenchmarkFile reads a benchmark JSON file
func LoadBenchmarkFile(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open benchmark file: %w", err)
	}
	defer f.Close()
	return DecodeBenchmark(f)
}
