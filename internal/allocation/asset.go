package allocation

import (
	"fmt"
	"strings"
)

// AssetClass portfolio building block the allocation bands are expressed in
type AssetClass string

const (
	Equity     AssetClass = "EQUITY"
	Hybrid     AssetClass = "HYBRID"
	DebtLong   AssetClass = "DEBT_LONG"
	DebtMedium AssetClass = "DEBT_MEDIUM"
	DebtShort  AssetClass = "DEBT_SHORT"
	Gold       AssetClass = "GOLD"
)

// AssetClasses returns every asset class in display order
func AssetClasses() []AssetClass {
	return []AssetClass{Equity, Hybrid, DebtLong, DebtMedium, DebtShort, Gold}
}

// Valid reports whether c is a known asset class
func (c AssetClass) Valid() bool {
	for _, known := range AssetClasses() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseAssetClass parses an asset class name, case-insensitively
func ParseAssetClass(s string) (AssetClass, error) {
	c := AssetClass(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown asset class %q", s)
	}
	return c, nil
}

// DisplayName human-readable asset class label
func (c AssetClass) DisplayName() string {
	switch c {
	case Equity:
		return "Pure Equities"
	case Hybrid:
		return "Hybrid Funds"
	case DebtLong:
		return "Long Duration Debt"
	case DebtMedium:
		return "Medium/Dynamic Debt"
	case DebtShort:
		return "Short Duration/Cash"
	case Gold:
		return "Gold"
	}
	return string(c)
}

// Fund one selectable fund. AssetClass wins over keyword classification.
type Fund struct {
	Code       string     `json:"code" yaml:"code"`
	Name       string     `json:"name" yaml:"name"`
	Category   string     `json:"category,omitempty" yaml:"category,omitempty"`
	AssetClass AssetClass `json:"assetClass,omitempty" yaml:"asset_class,omitempty"`
}

// Class resolves the fund's asset class
func (f Fund) Class() AssetClass {
	if f.AssetClass.Valid() {
		return f.AssetClass
	}
	return ClassifyCategory(f.Category, f.Name)
}

// keyword rules, checked in order; the first match wins
var classKeywords = []struct {
	class    AssetClass
	keywords []string
}{
	{Gold, []string{"gold", "silver", "commodity", "precious"}},
	{Hybrid, []string{"hybrid", "balanced", "arbitrage", "equity savings", "asset allocation", "multi asset"}},
	{DebtShort, []string{"liquid", "overnight", "money market", "ultra short", "low duration", "short duration", "short term", "treasury", "t-bill", "cash"}},
	{DebtLong, []string{"gilt", "long duration"}},
	{DebtMedium, []string{"debt", "bond", "income", "corporate", "credit risk", "medium duration", "floater", "floating", "government securities"}},
}

// ClassifyCategory maps a fund category and name onto an asset class by
// keyword. Anything unrecognised is treated as equity.
func ClassifyCategory(category, name string) AssetClass {
	text := strings.ToLower(category + " " + name)
	for _, rule := range classKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.class
			}
		}
	}
	return Equity
}

// ClassWeights sums fund weights per asset class
func ClassWeights(funds []Fund, weights map[string]float64) map[AssetClass]float64 {
	out := make(map[AssetClass]float64, len(AssetClasses()))
	for _, f := range funds {
		out[f.Class()] += weights[f.Code]
	}
	return out
}
