package regimeconfig

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ConfigID == "" {
		return ValidationError{"meta.config_id", "required"}
	}

	// === Model ===
	if err := validatePctRange(cfg.Model.SmoothingFactor, "model.smoothing_factor"); err != nil {
		return err
	}

	known := make(map[regime.Feature]bool, 10)
	for _, f := range regime.Features() {
		known[f] = true
	}

	curves := make(map[regime.Feature]bool, len(cfg.Model.Curves))
	for i, c := range cfg.Model.Curves {
		field := fmt.Sprintf("model.curves[%d]", i)
		if !known[c.Feature] {
			return ValidationError{field, fmt.Sprintf("unknown feature %q", c.Feature)}
		}
		if curves[c.Feature] {
			return ValidationError{field, fmt.Sprintf("duplicate feature %q", c.Feature)}
		}
		curves[c.Feature] = true
		if c.Lo == c.Hi {
			return ValidationError{field, "lo must differ from hi"}
		}
		if err := validatePctRange(c.Neutral, field+".neutral"); err != nil {
			return err
		}
	}
	for _, f := range regime.Features() {
		if !curves[f] {
			return ValidationError{"model.curves", fmt.Sprintf("missing feature %q", f)}
		}
	}

	evidence := make(map[regime.ID]bool, 4)
	for i, ev := range cfg.Model.Evidence {
		field := fmt.Sprintf("model.evidence[%d]", i)
		if !ev.Regime.Valid() {
			return ValidationError{field, fmt.Sprintf("unknown regime %q", ev.Regime)}
		}
		if evidence[ev.Regime] {
			return ValidationError{field, fmt.Sprintf("duplicate regime %s", ev.Regime)}
		}
		evidence[ev.Regime] = true

		weights := make([]float64, 0, len(ev.Terms))
		for j, term := range ev.Terms {
			if !known[term.Feature] {
				return ValidationError{fmt.Sprintf("%s.terms[%d]", field, j), fmt.Sprintf("unknown feature %q", term.Feature)}
			}
			if term.Weight < 0 {
				return ValidationError{fmt.Sprintf("%s.terms[%d].weight", field, j), "must be >= 0"}
			}
			weights = append(weights, term.Weight)
		}
		if err := validateWeightsSum(weights, 1.0, 1e-6); err != nil {
			return ValidationError{field + ".terms", err.Error()}
		}
	}
	for _, id := range regime.All() {
		if !evidence[id] {
			return ValidationError{"model.evidence", fmt.Sprintf("missing regime %s", id)}
		}
	}

	// === Discipline ===
	d := cfg.Discipline
	if d.RealRateMonths <= 0 {
		return ValidationError{"discipline.real_rate_months", "must be > 0"}
	}
	if d.CorrelationMonths <= 0 {
		return ValidationError{"discipline.correlation_months", "must be > 0"}
	}
	if d.GoldBuyingMonths <= 0 {
		return ValidationError{"discipline.gold_buying_months", "must be > 0"}
	}

	// === Regimes ===
	seen := make(map[regime.ID]bool, 4)
	for i, rs := range cfg.Regimes {
		field := fmt.Sprintf("regimes[%d]", i)
		if !rs.ID.Valid() {
			return ValidationError{field + ".id", fmt.Sprintf("unknown regime %q", rs.ID)}
		}
		if seen[rs.ID] {
			return ValidationError{field + ".id", fmt.Sprintf("duplicate regime %s", rs.ID)}
		}
		seen[rs.ID] = true
		if rs.Name == "" {
			return ValidationError{field + ".name", "required"}
		}

		classes := make(map[allocation.AssetClass]bool, len(rs.Bands))
		targets := make([]float64, 0, len(rs.Bands))
		for j, b := range rs.Bands {
			bf := fmt.Sprintf("%s.bands[%d]", field, j)
			if !b.AssetClass.Valid() {
				return ValidationError{bf, fmt.Sprintf("unknown asset class %q", b.AssetClass)}
			}
			if classes[b.AssetClass] {
				return ValidationError{bf, fmt.Sprintf("duplicate asset class %s", b.AssetClass)}
			}
			classes[b.AssetClass] = true

			for _, v := range []struct {
				name string
				val  float64
			}{{"min", b.Min}, {"max", b.Max}, {"target", b.Target}} {
				if err := validatePctRange(v.val, bf+"."+v.name); err != nil {
					return err
				}
			}
			if b.Min > b.Target || b.Target > b.Max {
				return ValidationError{bf, "must satisfy min <= target <= max"}
			}
			targets = append(targets, b.Target)
		}
		if err := validateWeightsSum(targets, 1.0, 1e-6); err != nil {
			return ValidationError{field + ".bands", "targets " + err.Error()}
		}
	}
	for _, id := range regime.All() {
		if !seen[id] {
			return ValidationError{"regimes", fmt.Sprintf("missing regime %s", id)}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 재정우위 국면 금 비중 10% 미만 경고
	for _, rs := range cfg.Regimes {
		if rs.ID != regime.RegimeC {
			continue
		}
		gold := 0.0
		for _, b := range rs.Bands {
			if b.AssetClass == allocation.Gold {
				gold = b.Target
			}
		}
		if gold < 0.10 {
			warnings = append(warnings, Warning{
				Code:    "LOW_GOLD_REGIME_C",
				Message: fmt.Sprintf("REGIME_C gold target %.1f%% < 10%%: fiscal dominance hedge is thin", gold*100),
			})
		}
	}

	// 관측 범위 밖 스무딩 경고
	sf := cfg.Model.SmoothingFactor
	if sf < 0.3 || sf > 0.5 {
		warnings = append(warnings, Warning{
			Code:    "SMOOTHING_OUT_OF_RANGE",
			Message: fmt.Sprintf("smoothing factor %.2f outside the calibrated 0.30~0.50 range", sf),
		})
	}

	// 밴드에 빠진 자산군 경고
	for _, rs := range cfg.Regimes {
		listed := make(map[allocation.AssetClass]bool, len(rs.Bands))
		for _, b := range rs.Bands {
			listed[b.AssetClass] = true
		}
		for _, c := range allocation.AssetClasses() {
			if !listed[c] {
				warnings = append(warnings, Warning{
					Code:    "UNLISTED_ASSET_CLASS",
					Message: fmt.Sprintf("%s has no band for %s (treated as 0)", rs.ID, c),
				})
			}
		}
	}

	return warnings
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validatePctRange는 비율 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
