package regimeconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/regime"
)

func TestDefaultMatchesBuiltinParams(t *testing.T) {
	cfg, data := Default()
	require.NotEmpty(t, data)

	assert.Equal(t, regime.DefaultParams(), cfg.Params())
	assert.Empty(t, Warn(cfg))
}

func TestDefaultTable(t *testing.T) {
	cfg, _ := Default()
	table, err := cfg.Table()
	require.NoError(t, err)

	for _, r := range table.Regimes() {
		assert.InDelta(t, 1.0, r.Bands.TargetSum(), 1e-9, r.ID)
		assert.NotEmpty(t, r.Description)
	}

	gold := table.Bands(regime.RegimeC)[allocation.Gold]
	assert.GreaterOrEqual(t, gold.Target, 0.10)

	c, ok := table.Regime(regime.RegimeC)
	require.True(t, ok)
	assert.Equal(t, "Fiscal Dominance / Financial Repression", c.Name)
	assert.Equal(t, "Regime C", c.ShortName)
}

func TestDefaultPassesSanityChecks(t *testing.T) {
	cfg, _ := Default()
	report := regime.RunSanityChecks(regime.NewDetector(cfg.Params()))
	assert.True(t, report.AllPassed(), "%+v", report.Results)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	data := strings.Replace(string(defaultYAML), "smoothing_factor:", "smothing_factor:", 1)
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smothing_factor")
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing config id", func(c *Config) { c.Meta.ConfigID = "" }, "meta.config_id"},
		{"smoothing out of range", func(c *Config) { c.Model.SmoothingFactor = 1.5 }, "model.smoothing_factor"},
		{"flat curve", func(c *Config) { c.Model.Curves[0].Hi = c.Model.Curves[0].Lo }, "model.curves[0]"},
		{"missing curve", func(c *Config) { c.Model.Curves = c.Model.Curves[1:] }, "model.curves"},
		{"unknown feature", func(c *Config) { c.Model.Evidence[0].Terms[0].Feature = "vibes" }, "model.evidence[0].terms[0]"},
		{"evidence weights", func(c *Config) { c.Model.Evidence[1].Terms[0].Weight = 0.5 }, "model.evidence[1].terms"},
		{"missing evidence", func(c *Config) { c.Model.Evidence = c.Model.Evidence[:3] }, "model.evidence"},
		{"discipline window", func(c *Config) { c.Discipline.RealRateMonths = 0 }, "discipline.real_rate_months"},
		{"band order", func(c *Config) { c.Regimes[0].Bands[0].Target = 0.9 }, "regimes[0].bands[0]"},
		{"band range", func(c *Config) { c.Regimes[3].Bands[5].Max = 1.2 }, "regimes[3].bands[5].max"},
		{"target sum", func(c *Config) { c.Regimes[2].Bands[0].Target = 0.45 }, "regimes[2].bands"},
		{"unknown asset class", func(c *Config) { c.Regimes[1].Bands[0].AssetClass = "CRYPTO" }, "regimes[1].bands[0]"},
		{"missing regime", func(c *Config) { c.Regimes = c.Regimes[:3] }, "regimes"},
		{"duplicate regime", func(c *Config) { c.Regimes[1].ID = regime.RegimeA }, "regimes[1].id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestWarn(t *testing.T) {
	cfg, _ := Default()
	cfg.Model.SmoothingFactor = 0.8
	for i := range cfg.Regimes[2].Bands {
		if cfg.Regimes[2].Bands[i].AssetClass == allocation.Gold {
			cfg.Regimes[2].Bands[i].Target = 0.05
		}
	}
	cfg.Regimes[0].Bands = cfg.Regimes[0].Bands[:5]

	codes := map[string]bool{}
	for _, w := range Warn(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["LOW_GOLD_REGIME_C"])
	assert.True(t, codes["SMOOTHING_OUT_OF_RANGE"])
	assert.True(t, codes["UNLISTED_ASSET_CLASS"])
}

func TestHashDeterministic(t *testing.T) {
	cfg, data := Default()

	h1, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	h2, _ := Hash(cfg)
	assert.Equal(t, h1, h2)

	cfg.Model.SmoothingFactor = 0.4
	h3, _ := Hash(cfg)
	assert.NotEqual(t, h1, h3)

	snap, err := NewSnapshot(cfg, data, "macro-2024-12")
	require.NoError(t, err)
	assert.Equal(t, h3, snap.ConfigHash)
	assert.Equal(t, "regime_default", snap.ConfigID)
	assert.Equal(t, "macro-2024-12", snap.DataSnapshotID)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regime.yaml")
	custom := strings.Replace(string(defaultYAML), "smoothing_factor: 0.3", "smoothing_factor: 0.5", 1)
	require.NoError(t, os.WriteFile(path, []byte(custom), 0o644))

	cfg, data, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Model.SmoothingFactor)
	assert.Equal(t, custom, string(data))

	cfg, _, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Model.SmoothingFactor)

	_, _, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
