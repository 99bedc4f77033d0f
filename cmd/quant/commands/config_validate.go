package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/regimeconfig"
)

// configCmd represents the config command group
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "레짐 설정 관리",
}

// configValidateCmd validates a regime YAML
var configValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "레짐 설정 YAML 검증",
	Long: `레짐 설정 YAML을 검증하고 해시를 출력합니다.

검증 항목:
- 4개 레짐 모두 정의, 밴드 min ≤ target ≤ max
- 레짐별 target 합계 = 1.0
- 모델 파라미터 범위 (smoothing, discipline, curves)

경고 (실패 아님):
- 보정 범위를 벗어난 smoothing factor 등

Example:
  go run ./cmd/quant config validate
  go run ./cmd/quant config validate configs/regime.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		path = cfg.Regime.ConfigPath
	}

	source := path
	if source == "" {
		source = "(embedded default)"
	}

	// LoadOrDefault validates; a ValidationError is reported, anything else is returned
	regimeCfg, _, err := regimeconfig.LoadOrDefault(path)
	if err != nil {
		var verr regimeconfig.ValidationError
		if errors.As(err, &verr) {
			PrintError(fmt.Sprintf("%s: %s", source, verr.Error()))
		}
		return fmt.Errorf("invalid regime config: %w", err)
	}

	hash, err := regimeconfig.Hash(regimeCfg)
	if err != nil {
		return err
	}
	warnings := regimeconfig.Warn(regimeCfg)

	if outputJSON {
		return printJSON(map[string]interface{}{
			"source":   source,
			"valid":    true,
			"hash":     hash,
			"warnings": warnings,
		})
	}

	PrintSuccess(fmt.Sprintf("%s is valid", source))
	PrintKeyValue("Config ID", regimeCfg.Meta.ConfigID, 10)
	PrintKeyValue("Version", regimeCfg.Meta.Version, 10)
	PrintKeyValue("Hash", hash, 10)
	for _, w := range warnings {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	return nil
}
