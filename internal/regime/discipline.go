package regime

import (
	"fmt"
	"strings"
)

// Condition progress of one REGIME_C exit condition
type Condition struct {
	Label  string  `json:"label"`
	Met    int     `json:"met"`    // months satisfying the condition
	Window int     `json:"window"` // full lookback, always the denominator
	Ratio  float64 `json:"ratio"`  // Met / Window
}

// Satisfied is true once every month of the lookback meets the condition
func (c Condition) Satisfied() bool {
	return c.Window > 0 && c.Met >= c.Window
}

func (c Condition) String() string {
	return fmt.Sprintf("%s: %d/%d months", c.Label, c.Met, c.Window)
}

// DisciplineProgress rolling exit conditions for REGIME_C
type DisciplineProgress struct {
	RealRate       Condition `json:"realRate"`
	BondEquityCorr Condition `json:"bondEquityCorr"`
	CBGoldBuying   Condition `json:"cbGoldBuying"`
}

// Conditions returns the three conditions in display order
func (d DisciplineProgress) Conditions() []Condition {
	return []Condition{d.RealRate, d.BondEquityCorr, d.CBGoldBuying}
}

// Complete is true only when all three ratios reach 100%
func (d DisciplineProgress) Complete() bool {
	for _, c := range d.Conditions() {
		if !c.Satisfied() {
			return false
		}
	}
	return true
}

// BlockReason lists the unmet conditions, empty when complete
func (d DisciplineProgress) BlockReason() string {
	var unmet []string
	for _, c := range d.Conditions() {
		if !c.Satisfied() {
			unmet = append(unmet, c.String())
		}
	}
	return strings.Join(unmet, "; ")
}

// Discipline evaluates the exit conditions over months (oldest first, current
// month last). Months before the start of history and months with a missing
// input count as unmet, so a short history blocks exit.
func Discipline(months []Indicators, rules DisciplineRules) DisciplineProgress {
	return DisciplineProgress{
		RealRate: count(months, rules.RealRateMonths,
			fmt.Sprintf("real rate > %.1f", rules.RealRateAbove),
			func(ind Indicators) bool { return ind.RealRate != nil && *ind.RealRate > rules.RealRateAbove }),
		BondEquityCorr: count(months, rules.CorrelationMonths,
			fmt.Sprintf("bond-equity correlation < %.1f", rules.CorrelationBelow),
			func(ind Indicators) bool {
				return ind.BondEquityCorr != nil && *ind.BondEquityCorr < rules.CorrelationBelow
			}),
		CBGoldBuying: count(months, rules.GoldBuyingMonths,
			fmt.Sprintf("central bank gold buying < %.1f", rules.GoldBuyingBelow),
			func(ind Indicators) bool { return ind.CBGoldBuying != nil && *ind.CBGoldBuying < rules.GoldBuyingBelow }),
	}
}

func count(months []Indicators, window int, label string, ok func(Indicators) bool) Condition {
	c := Condition{Label: label, Window: window}
	if window <= 0 {
		return c
	}
	start := len(months) - window
	if start < 0 {
		start = 0
	}
	for _, m := range months[start:] {
		if ok(m) {
			c.Met++
		}
	}
	c.Ratio = float64(c.Met) / float64(window)
	return c
}
