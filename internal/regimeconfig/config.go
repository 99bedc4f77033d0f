package regimeconfig

import (
	"time"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// Config 레짐 탐지 모델 + 자산배분 밴드 전체 설정
type Config struct {
	Meta       Meta                   `yaml:"meta" json:"meta"`
	Model      Model                  `yaml:"model" json:"model"`
	Discipline regime.DisciplineRules `yaml:"discipline" json:"discipline"`
	Regimes    []RegimeSpec           `yaml:"regimes" json:"regimes"`
}

// Meta 메타 정보
type Meta struct {
	ConfigID string `yaml:"config_id" json:"config_id"`
	Version  string `yaml:"version" json:"version"`
}

// Model 확률 모델 파라미터
type Model struct {
	SmoothingFactor float64        `yaml:"smoothing_factor" json:"smoothing_factor"`
	Curves          []CurveSpec    `yaml:"curves" json:"curves"`
	Evidence        []EvidenceSpec `yaml:"evidence" json:"evidence"`
}

// CurveSpec scoring curve of one evidence feature
type CurveSpec struct {
	Feature   regime.Feature `yaml:"feature" json:"feature"`
	Lo        float64        `yaml:"lo" json:"lo"`
	Hi        float64        `yaml:"hi" json:"hi"`
	Threshold float64        `yaml:"threshold" json:"threshold"`
	Neutral   float64        `yaml:"neutral" json:"neutral"`
}

// EvidenceSpec weighted terms of one regime
type EvidenceSpec struct {
	Regime regime.ID     `yaml:"regime" json:"regime"`
	Terms  []regime.Term `yaml:"terms" json:"terms"`
}

// RegimeSpec regime metadata and allocation bands
type RegimeSpec struct {
	ID          regime.ID  `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	ShortName   string     `yaml:"short_name" json:"short_name"`
	Description string     `yaml:"description" json:"description"`
	Bands       []BandSpec `yaml:"bands" json:"bands"`
}

// BandSpec 자산군별 밴드
type BandSpec struct {
	AssetClass allocation.AssetClass `yaml:"asset_class" json:"asset_class"`
	Min        float64               `yaml:"min" json:"min"`
	Max        float64               `yaml:"max" json:"max"`
	Target     float64               `yaml:"target" json:"target"`
}

// Snapshot 감사용 설정 스냅샷
type Snapshot struct {
	ConfigHash     string    `json:"config_hash"`
	ConfigYAML     string    `json:"config_yaml"`
	ConfigID       string    `json:"config_id"`
	DataSnapshotID string    `json:"data_snapshot_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Params converts the model section into detector parameters
func (c *Config) Params() regime.Params {
	p := regime.Params{
		Curves:          make(map[regime.Feature]regime.Curve, len(c.Model.Curves)),
		Evidence:        make(map[regime.ID][]regime.Term, len(c.Model.Evidence)),
		SmoothingFactor: c.Model.SmoothingFactor,
		Discipline:      c.Discipline,
	}
	for _, cs := range c.Model.Curves {
		p.Curves[cs.Feature] = regime.Curve{Lo: cs.Lo, Hi: cs.Hi, Threshold: cs.Threshold, Neutral: cs.Neutral}
	}
	for _, ev := range c.Model.Evidence {
		p.Evidence[ev.Regime] = append([]regime.Term(nil), ev.Terms...)
	}
	return p
}

// Table converts the regimes section into an allocation lookup
func (c *Config) Table() (*allocation.Table, error) {
	regimes := make([]allocation.Regime, 0, len(c.Regimes))
	for _, rs := range c.Regimes {
		bands := make(allocation.Bands, len(rs.Bands))
		for _, b := range rs.Bands {
			bands[b.AssetClass] = allocation.Band{Min: b.Min, Max: b.Max, Target: b.Target}
		}
		regimes = append(regimes, allocation.Regime{
			ID:          rs.ID,
			Name:        rs.Name,
			ShortName:   rs.ShortName,
			Description: rs.Description,
			Bands:       bands,
		})
	}
	return allocation.NewTable(regimes)
}
