package macro

import (
	"fmt"
	"math"
)

// Source names the fallback tier that produced a derived value
type Source string

const (
	SourceOverride Source = "override"
	SourceComputed Source = "computed"
	SourceProxy    Source = "proxy"
	SourceDefault  Source = "default"
)

// Derived 정규화 단계에서 계산된 파생 지표 (모두 확정값)
type Derived struct {
	RealRate          float64  `json:"realRate"`
	DebtStress        float64  `json:"debtStress"`
	InflationVol      float64  `json:"inflationVol"`
	GrowthVol         float64  `json:"growthVol"`
	VolatilityRatio   float64  `json:"volatilityRatio"`
	BondEquityCorr    float64  `json:"bondEquityCorr"`
	CBGoldBuying      float64  `json:"cbGoldBuying"`
	InflationMomentum float64  `json:"inflationMomentum"`
	GrowthMomentum    float64  `json:"growthMomentum"`
	FXVolatility      float64  `json:"fxVolatility"`
	EquityReturn      float64  `json:"equityReturn"`
	BondReturn        float64  `json:"bondReturn"`
	GDPGrowth         *float64 `json:"gdpGrowth,omitempty"`
	CreditSpread      *float64 `json:"creditSpread,omitempty"`
	EquityVolZ        *float64 `json:"equityVolZ,omitempty"`

	Sources map[string]Source `json:"sources"`
}

// Enriched a prepared record plus its derived indicators
type Enriched struct {
	Record
	Derived Derived `json:"derived"`
}

// Options window sizes and proxy constants
type Options struct {
	ZScoreWindow      int     // 60 months
	StatsWindow       int     // 12 months
	MomentumWindow    int     // 3 months
	CorrelationWindow int     // 12 months
	DefaultGSecYield  float64 // used by the last-resort debt stress proxy
}

// DefaultOptions returns the standard windows
func DefaultOptions() Options {
	return Options{
		ZScoreWindow:      60,
		StatsWindow:       12,
		MomentumWindow:    3,
		CorrelationWindow: 12,
		DefaultGSecYield:  7.0,
	}
}

// Normalizer turns raw macro records into comparable derived indicators
// ⭐ SSOT: 파생 지표 계산 규칙은 여기서만
type Normalizer struct {
	opts Options
}

// NewNormalizer creates a normalizer; zero-valued options fall back to defaults
func NewNormalizer(opts Options) *Normalizer {
	def := DefaultOptions()
	if opts.ZScoreWindow <= 0 {
		opts.ZScoreWindow = def.ZScoreWindow
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = def.StatsWindow
	}
	if opts.MomentumWindow <= 0 {
		opts.MomentumWindow = def.MomentumWindow
	}
	if opts.CorrelationWindow <= 0 {
		opts.CorrelationWindow = def.CorrelationWindow
	}
	if opts.DefaultGSecYield <= 0 {
		opts.DefaultGSecYield = def.DefaultGSecYield
	}
	return &Normalizer{opts: opts}
}

// Options returns the effective options
func (n *Normalizer) Options() Options {
	return n.opts
}

// series extracts a raw field as float64 with NaN for missing
func series(records []Record, name string) []float64 {
	out := make([]float64, len(records))
	for i := range records {
		if p := records[i].Raw(name); p != nil {
			out[i] = *p
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// checkOrder verifies every date parses and months strictly ascend
func checkOrder(records []Record) error {
	var prev string
	for i := range records {
		m, err := records[i].Month()
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		key := MonthKey(m)
		if i > 0 && key <= prev {
			return fmt.Errorf("%w: %s after %s", ErrUnordered, key, prev)
		}
		prev = key
	}
	return nil
}

// Enrich forward-fills raw values and derives every indicator.
// Month t only reads months <= t.
func (n *Normalizer) Enrich(records []Record) ([]Enriched, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}
	if err := checkOrder(records); err != nil {
		return nil, err
	}

	filled := ForwardFill(records)

	cpi := series(filled, "cpiInflation")
	gdp := series(filled, "gdpGrowth")
	spx := series(filled, "sp500")
	gsec := series(filled, "gSecYield")
	fx := series(filled, "fxRate")

	infStats := RollingStats(cpi, n.opts.StatsWindow)
	growthStats := RollingStats(gdp, n.opts.StatsWindow)
	infMom := Momentum(cpi, n.opts.MomentumWindow)
	growthMom := Momentum(gdp, n.opts.MomentumWindow)

	equityRet := pctChanges(spx)
	bondRet := make([]float64, len(gsec))
	for i := 1; i < len(gsec); i++ {
		if !math.IsNaN(gsec[i]) && !math.IsNaN(gsec[i-1]) {
			bondRet[i] = -(gsec[i] - gsec[i-1]) / 100
		}
	}

	// month 0 (no prior price) stays in the window as a 0% return pair
	corr := RollingCorrelation(equityRet, bondRet, n.opts.CorrelationWindow)

	eqVol := make([]float64, len(equityRet))
	for i, s := range RollingStats(equityRet, n.opts.StatsWindow) {
		eqVol[i] = math.NaN()
		if s.Full(n.opts.StatsWindow) {
			eqVol[i] = s.StdDev
		}
	}
	eqVolZ := make(map[int]float64)
	for _, z := range ZScores(eqVol, n.opts.ZScoreWindow) {
		eqVolZ[z.Index] = z.Z
	}

	out := make([]Enriched, len(filled))
	for i := range filled {
		rec := filled[i]
		d := Derived{
			InflationMomentum: infMom[i],
			GrowthMomentum:    growthMom[i],
			EquityReturn:      equityRet[i],
			BondReturn:        bondRet[i],
			GDPGrowth:         rec.GDPGrowth,
			CreditSpread:      rec.CreditSpread,
			Sources:           make(map[string]Source, 6),
		}

		d.RealRate, d.Sources["realRate"] = resolveRealRate(rec)
		d.DebtStress, d.Sources["debtStress"] = resolveDebtStress(rec, n.opts.DefaultGSecYield)
		d.CBGoldBuying, d.Sources["cbGoldBuying"] = resolveGoldBuying(rec)

		// 12개월 창이 차기 전에는 중립 기본값 (vol 0, ratio 1.0, corr 0)
		infFull := infStats[i].Full(n.opts.StatsWindow)
		growthFull := growthStats[i].Full(n.opts.StatsWindow)
		if growthFull {
			d.GrowthVol = growthStats[i].StdDev
		}
		d.InflationVol, d.Sources["inflationVol"] = resolveInflationVol(rec, infStats[i].StdDev, infFull)
		d.VolatilityRatio, d.Sources["volatilityRatio"] = resolveVolatilityRatio(rec, d.InflationVol, d.GrowthVol, (infFull || rec.InflationVol != nil) && growthFull)
		d.BondEquityCorr, d.Sources["bondEquityCorr"] = resolveBondEquityCorr(rec, corr[i], i >= n.opts.CorrelationWindow-1)

		if rec.EquityVolatility != nil {
			v := *rec.EquityVolatility
			d.EquityVolZ = &v
		} else if z, ok := eqVolZ[i]; ok {
			d.EquityVolZ = &z
		}

		if i > 0 && !math.IsNaN(fx[i]) && !math.IsNaN(fx[i-1]) && fx[i-1] != 0 {
			d.FXVolatility = math.Abs((fx[i]-fx[i-1])/fx[i-1]) * 100 * math.Sqrt(12)
		}

		out[i] = Enriched{Record: rec, Derived: d}
	}

	return out, nil
}

// ZScoreTable z-scores every raw indicator over the long window.
// Indicators with less history than the window are absent from the map.
func (n *Normalizer) ZScoreTable(records []Record) map[string][]ZScore {
	filled := ForwardFill(records)
	table := make(map[string][]ZScore)
	for _, name := range RawFieldNames() {
		if zs := ZScores(series(filled, name), n.opts.ZScoreWindow); len(zs) > 0 {
			table[name] = zs
		}
	}
	return table
}

// pctChanges p[t]/p[t-1]-1; 0 when either side is missing or the base is 0
func pctChanges(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
			continue
		}
		out[i] = cur/prev - 1
	}
	return out
}

// resolveRealRate override > repoRate - cpiInflation > 0
func resolveRealRate(r Record) (float64, Source) {
	if r.RealRate != nil {
		return *r.RealRate, SourceOverride
	}
	if r.RepoRate != nil && r.CPIInflation != nil {
		return *r.RepoRate - *r.CPIInflation, SourceComputed
	}
	return 0, SourceDefault
}

// resolveDebtStress override > interest/nominal GDP > interest/(gdpIndex*1.5) > 0.8*gSecYield.
// The gdpIndex scaling and the yield proxy are coarse approximations kept as-is.
func resolveDebtStress(r Record, defaultYield float64) (float64, Source) {
	if r.DebtStress != nil {
		return *r.DebtStress, SourceOverride
	}
	if r.InterestExpense != nil {
		if r.GDPNominal != nil && *r.GDPNominal != 0 {
			return *r.InterestExpense / *r.GDPNominal * 100, SourceComputed
		}
		if r.GDPIndex != nil && *r.GDPIndex != 0 {
			return *r.InterestExpense / (*r.GDPIndex * 1.5) * 100, SourceComputed
		}
	}
	return 0.8 * valueOr(r.GSecYield, defaultYield), SourceProxy
}

// resolveGoldBuying override > forexReserves/1000 proxy > 0
func resolveGoldBuying(r Record) (float64, Source) {
	if r.CBGoldBuying != nil {
		return *r.CBGoldBuying, SourceOverride
	}
	if r.ForexReserves != nil {
		return *r.ForexReserves / 1000, SourceProxy
	}
	return 0, SourceDefault
}

// resolveInflationVol override > full-window std > 0
func resolveInflationVol(r Record, std float64, full bool) (float64, Source) {
	if r.InflationVol != nil {
		return *r.InflationVol, SourceOverride
	}
	if !full {
		return 0, SourceDefault
	}
	return std, SourceComputed
}

// resolveVolatilityRatio override > inflationVol/growthVol, neutral 1.0 while
// either window is short or growth vol is zero
func resolveVolatilityRatio(r Record, infVol, growthVol float64, full bool) (float64, Source) {
	if r.VolatilityRatio != nil {
		return *r.VolatilityRatio, SourceOverride
	}
	if !full || growthVol == 0 {
		return 1.0, SourceDefault
	}
	return infVol / growthVol, SourceComputed
}

// resolveBondEquityCorr override > full-window correlation > 0
func resolveBondEquityCorr(r Record, corr float64, full bool) (float64, Source) {
	if r.BondEquityCorr != nil {
		return *r.BondEquityCorr, SourceOverride
	}
	if !full {
		return 0, SourceDefault
	}
	return corr, SourceComputed
}
