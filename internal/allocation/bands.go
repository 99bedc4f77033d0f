package allocation

import (
	"fmt"
	"sort"

	"github.com/wonny/regimelab/backend/internal/regime"
)

// Band allowed weight range for one asset class
type Band struct {
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Target float64 `json:"target" yaml:"target"`
}

// Bands asset class → band
type Bands map[AssetClass]Band

// Targets target weight per asset class
func (b Bands) Targets() map[AssetClass]float64 {
	out := make(map[AssetClass]float64, len(b))
	for c, band := range b {
		out[c] = band.Target
	}
	return out
}

// TargetSum sum of targets, ≈1.0 for a well-formed regime
func (b Bands) TargetSum() float64 {
	sum := 0.0
	for _, band := range b {
		sum += band.Target
	}
	return sum
}

// Regime immutable regime metadata plus its allocation bands
type Regime struct {
	ID          regime.ID `json:"id"`
	Name        string    `json:"name"`
	ShortName   string    `json:"shortName"`
	Description string    `json:"description"`
	Bands       Bands     `json:"allocationBands"`
}

// Table regime → allocation lookup, loaded once and never mutated
// ⭐ SSOT: 레짐별 자산배분 밴드 조회는 여기서만
type Table struct {
	regimes map[regime.ID]Regime
}

// NewTable builds a lookup table; every regime must be present
func NewTable(regimes []Regime) (*Table, error) {
	t := &Table{regimes: make(map[regime.ID]Regime, len(regimes))}
	for _, r := range regimes {
		if !r.ID.Valid() {
			return nil, fmt.Errorf("unknown regime %q", r.ID)
		}
		t.regimes[r.ID] = r
	}
	for _, id := range regime.All() {
		if _, ok := t.regimes[id]; !ok {
			return nil, fmt.Errorf("regime %s missing from allocation table", id)
		}
	}
	return t, nil
}

// Regime returns the metadata of id
func (t *Table) Regime(id regime.ID) (Regime, bool) {
	r, ok := t.regimes[id]
	return r, ok
}

// Regimes returns every regime in A→D order
func (t *Table) Regimes() []Regime {
	out := make([]Regime, 0, len(t.regimes))
	for _, id := range regime.All() {
		out = append(out, t.regimes[id])
	}
	return out
}

// Bands allocation bands of id (nil for an unknown regime)
func (t *Table) Bands(id regime.ID) Bands {
	return t.regimes[id].Bands
}

// Targets target weights of id
func (t *Table) Targets(id regime.ID) map[AssetClass]float64 {
	return t.Bands(id).Targets()
}

// Required asset classes with a non-zero target under id, sorted
func (t *Table) Required(id regime.ID) []AssetClass {
	var out []AssetClass
	for c, band := range t.Bands(id) {
		if band.Target > 0 {
			out = append(out, c)
		}
	}
	sortClasses(out)
	return out
}

// MissingAssetClasses required classes of id that no selected fund covers
func (t *Table) MissingAssetClasses(id regime.ID, funds []Fund) []AssetClass {
	present := make(map[AssetClass]bool, len(funds))
	for _, f := range funds {
		present[f.Class()] = true
	}

	var missing []AssetClass
	for _, c := range t.Required(id) {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Violation a class weight outside its band
type Violation struct {
	AssetClass AssetClass `json:"assetClass"`
	Type       string     `json:"type"` // below_min | above_max
	Actual     float64    `json:"actual"`
	Min        float64    `json:"min"`
	Max        float64    `json:"max"`
	Target     float64    `json:"target"`
}

const bandTolerance = 1e-9

// Violations checks asset-class weights against the bands of id.
// A class absent from weights counts as 0.
func (t *Table) Violations(id regime.ID, weights map[AssetClass]float64) []Violation {
	bands := t.Bands(id)
	classes := make([]AssetClass, 0, len(bands))
	for c := range bands {
		classes = append(classes, c)
	}
	sortClasses(classes)

	var out []Violation
	for _, c := range classes {
		band, w := bands[c], weights[c]
		v := Violation{AssetClass: c, Actual: w, Min: band.Min, Max: band.Max, Target: band.Target}
		switch {
		case w < band.Min-bandTolerance:
			v.Type = "below_min"
		case w > band.Max+bandTolerance:
			v.Type = "above_max"
		default:
			continue
		}
		out = append(out, v)
	}
	return out
}

// sortClasses orders classes by display order
func sortClasses(classes []AssetClass) {
	rank := make(map[AssetClass]int, len(AssetClasses()))
	for i, c := range AssetClasses() {
		rank[c] = i
	}
	sort.Slice(classes, func(i, j int) bool { return rank[classes[i]] < rank[classes[j]] })
}
