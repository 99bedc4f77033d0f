package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
	outputJSON bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "RegimeLab - 거시 레짐 탐지 및 레짐 조건부 백테스트",
	Long: `RegimeLab Unified CLI

월간 거시 지표로 A~D 레짐을 탐지하고,
레짐별 자산배분 밴드로 펀드 포트폴리오를 백테스트합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant regime detect
  go run ./cmd/quant backtest run --from 2015-01 --report report.md
  go run ./cmd/quant data check --macro data/macro.json
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "regime config YAML (default: REGIME_CONFIG_PATH or embedded)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}
