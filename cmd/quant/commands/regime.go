package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/allocation"
	"github.com/wonny/regimelab/backend/internal/backtest"
	"github.com/wonny/regimelab/backend/internal/regime"
)

// regimeCmd represents the regime command
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "레짐 탐지 및 배분 밴드 조회",
	Long: `월간 거시 지표로 레짐을 탐지하고 레짐별 배분 밴드를 조회합니다.

Subcommands:
  detect   - 전체 기간 레짐 재생 후 최근 월 표시
  history  - 전환 이력과 레짐 분포
  sanity   - 역사적 시나리오 검증
  bands    - 레짐 배분 밴드
  missing  - 레짐에 필요한데 펀드 목록에 없는 자산군

Example:
  go run ./cmd/quant regime detect --last 12
  go run ./cmd/quant regime history --export history.json
  go run ./cmd/quant regime bands REGIME_C
  go run ./cmd/quant regime missing C --funds funds.json`,
}

var (
	regimeDetectCmd = &cobra.Command{
		Use:   "detect",
		Short: "레짐 탐지",
		RunE:  runRegimeDetect,
	}

	regimeHistoryCmd = &cobra.Command{
		Use:   "history",
		Short: "레짐 전환 이력",
		RunE:  runRegimeHistory,
	}

	regimeSanityCmd = &cobra.Command{
		Use:   "sanity",
		Short: "역사적 시나리오 검증 (7개)",
		RunE:  runRegimeSanity,
	}

	regimeBandsCmd = &cobra.Command{
		Use:   "bands [regime]",
		Short: "레짐 배분 밴드 조회 (인자 없으면 전체)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRegimeBands,
	}

	regimeMissingCmd = &cobra.Command{
		Use:   "missing [regime]",
		Short: "누락 자산군 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegimeMissing,
	}

	// Flags
	regimeMacroPath string
	regimeLast      int
	regimeLimit     int
	regimeSave      bool
	regimeExport    string
	regimeStored    bool
	regimeFundsPath string
)

func init() {
	rootCmd.AddCommand(regimeCmd)
	regimeCmd.AddCommand(regimeDetectCmd)
	regimeCmd.AddCommand(regimeHistoryCmd)
	regimeCmd.AddCommand(regimeSanityCmd)
	regimeCmd.AddCommand(regimeBandsCmd)
	regimeCmd.AddCommand(regimeMissingCmd)

	for _, c := range []*cobra.Command{regimeDetectCmd, regimeHistoryCmd} {
		c.Flags().StringVar(&regimeMacroPath, "macro", "", "거시 데이터 JSON (기본: MACRO_DATA_PATH)")
		c.Flags().StringVar(&regimeExport, "export", "", "탐지 이력을 JSON 파일로 저장")
	}
	regimeDetectCmd.Flags().IntVar(&regimeLast, "last", 12, "표시할 최근 개월 수 (0=전체)")
	regimeDetectCmd.Flags().BoolVar(&regimeSave, "save", false, "DATABASE_URL이 있으면 탐지 결과 저장")
	regimeHistoryCmd.Flags().BoolVar(&regimeStored, "stored", false, "DB에 저장된 탐지 이력 조회")
	regimeHistoryCmd.Flags().IntVar(&regimeLimit, "limit", 0, "--stored 조회 개수 (0=전체)")
	regimeMissingCmd.Flags().StringVar(&regimeFundsPath, "funds", "", "펀드 목록 JSON (필수)")
	_ = regimeMissingCmd.MarkFlagRequired("funds")
}

func runRegimeDetect(cmd *cobra.Command, args []string) error {
	app, err := initApp(cmd.Context(), appOptions{infra: regimeSave, quiet: true, macroPath: regimeMacroPath})
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.orch.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("detect regime: %w", err)
	}
	st, err := app.orch.State()
	if err != nil {
		return err
	}
	if regimeExport != "" {
		if err := writeJSONFile(regimeExport, st.History); err != nil {
			return err
		}
	}

	history := st.History
	if regimeLast > 0 && len(history) > regimeLast {
		history = history[len(history)-regimeLast:]
	}

	if outputJSON {
		last, _ := st.History.Last()
		return printJSON(map[string]interface{}{
			"latest":      last,
			"history":     history,
			"snapshot":    st.Snapshot,
			"transitions": st.Transitions,
		})
	}

	fmt.Println("=== RegimeLab Regime Detection ===")
	PrintKeyValue("Config", st.Snapshot.ConfigHash, 10)
	PrintKeyValue("Data", st.Snapshot.DataSnapshotID, 10)
	fmt.Println()

	printDetections(history)

	last, _ := st.History.Last()
	meta, _ := app.orch.Table().Regime(last.Dominant)
	fmt.Println()
	PrintSuccess(fmt.Sprintf("%s: %s (%s), confidence %.1f%%, %d months in regime",
		last.Date, meta.Name, last.Dominant, last.Confidence*100, st.History.MonthsSinceChange()+1))
	if last.IsSticky {
		PrintWarning(fmt.Sprintf("%s is sticky: %s", last.NaturalLeader, last.BlockReason))
	}
	if regimeExport != "" {
		PrintInfo(fmt.Sprintf("history exported to %s", regimeExport))
	}
	return nil
}

func printDetections(history regime.History) {
	widths := []int{8, 10, 6, 6, 6, 6, 6, 7}
	PrintTableHeader([]string{"Month", "Regime", "Conf", "P(A)", "P(B)", "P(C)", "P(D)", "Sticky"}, widths)
	for _, d := range history {
		sticky := ""
		if d.IsSticky {
			sticky = "yes"
		}
		PrintTableRow([]string{
			d.Date,
			strings.TrimPrefix(string(d.Dominant), "REGIME_"),
			fmt.Sprintf("%.2f", d.Confidence),
			fmt.Sprintf("%.2f", d.Probabilities[regime.RegimeA]),
			fmt.Sprintf("%.2f", d.Probabilities[regime.RegimeB]),
			fmt.Sprintf("%.2f", d.Probabilities[regime.RegimeC]),
			fmt.Sprintf("%.2f", d.Probabilities[regime.RegimeD]),
			sticky,
		}, widths)
	}
}

func runRegimeHistory(cmd *cobra.Command, args []string) error {
	app, err := initApp(cmd.Context(), appOptions{infra: regimeStored, quiet: true, macroPath: regimeMacroPath})
	if err != nil {
		return err
	}
	defer app.Close()

	if regimeStored {
		if app.repo == nil {
			return fmt.Errorf("--stored requires DATABASE_URL")
		}
		stored, err := app.repo.DetectionHistory(cmd.Context(), app.orch.ConfigHash(), regimeLimit)
		if err != nil {
			return fmt.Errorf("load stored history: %w", err)
		}
		history := make(regime.History, len(stored))
		for i, s := range stored {
			history[i] = s.Detection
		}
		return printHistory(history, regimeExport)
	}

	if _, err := app.orch.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("detect regime: %w", err)
	}
	st, err := app.orch.State()
	if err != nil {
		return err
	}
	return printHistory(st.History, regimeExport)
}

func printHistory(history regime.History, export string) error {
	if export != "" {
		if err := writeJSONFile(export, history); err != nil {
			return err
		}
	}

	transitions := history.Transitions()
	distribution := history.Distribution()
	if outputJSON {
		return printJSON(map[string]interface{}{
			"count":        len(history),
			"transitions":  transitions,
			"distribution": distribution,
		})
	}

	fmt.Println("=== RegimeLab Regime History ===")
	if len(history) > 0 {
		PrintKeyValue("Period", fmt.Sprintf("%s ~ %s (%d months)", history[0].Date, history[len(history)-1].Date, len(history)), 8)
	}
	fmt.Println()

	fmt.Printf("🔄 Transitions (%d)\n", len(transitions))
	for _, t := range transitions {
		fmt.Printf("   %s  %s → %s  (%s)\n", t.Date, t.From, t.To, strings.Join(t.Drivers, ", "))
	}
	fmt.Println()

	fmt.Println("📊 Distribution")
	for _, id := range regime.All() {
		fmt.Printf("   %-9s %5.1f%%\n", id, distribution[id]*100)
	}
	return nil
}

func runRegimeSanity(cmd *cobra.Command, args []string) error {
	app, err := initApp(cmd.Context(), appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer app.Close()

	report := regime.RunSanityChecks(app.orch.Detector())
	if outputJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		fmt.Println("=== RegimeLab Sanity Checks ===")
		for _, r := range report.Results {
			mark := "✅"
			if !r.Passed {
				mark = "❌"
			}
			fmt.Printf("%s %-40s expected %-9s got %-9s (%.2f)\n", mark, r.Scenario, r.Expected, r.Actual, r.Probabilities[r.Actual])
		}
		fmt.Printf("\n%d/%d scenarios passed\n", report.Passed, report.Total)
	}

	if !report.AllPassed() {
		return fmt.Errorf("%d of %d sanity scenarios failed", report.Total-report.Passed, report.Total)
	}
	return nil
}

func runRegimeBands(cmd *cobra.Command, args []string) error {
	app, err := initApp(cmd.Context(), appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer app.Close()

	table := app.orch.Table()
	regimes := table.Regimes()
	if len(args) == 1 {
		id, err := parseRegimeArg(args[0])
		if err != nil {
			return err
		}
		r, _ := table.Regime(id)
		regimes = []allocation.Regime{r}
	}

	if outputJSON {
		return printJSON(regimes)
	}

	widths := []int{22, 6, 6, 6}
	for _, r := range regimes {
		fmt.Printf("\n%s - %s\n", r.ID, r.Name)
		if r.Description != "" {
			fmt.Printf("%s\n", r.Description)
		}
		PrintTableHeader([]string{"Asset Class", "Min", "Target", "Max"}, widths)
		for _, c := range allocation.AssetClasses() {
			band, ok := r.Bands[c]
			if !ok {
				continue
			}
			PrintTableRow([]string{
				c.DisplayName(),
				fmt.Sprintf("%.0f%%", band.Min*100),
				fmt.Sprintf("%.0f%%", band.Target*100),
				fmt.Sprintf("%.0f%%", band.Max*100),
			}, widths)
		}
	}
	return nil
}

func runRegimeMissing(cmd *cobra.Command, args []string) error {
	id, err := parseRegimeArg(args[0])
	if err != nil {
		return err
	}
	funds, err := backtest.LoadFundsFile(regimeFundsPath)
	if err != nil {
		return err
	}

	app, err := initApp(cmd.Context(), appOptions{quiet: true})
	if err != nil {
		return err
	}
	defer app.Close()

	missing := app.orch.Table().MissingAssetClasses(id, funds)
	if outputJSON {
		return printJSON(map[string]interface{}{"regime": id, "missing": missing})
	}

	if len(missing) == 0 {
		PrintSuccess(fmt.Sprintf("%d funds cover every asset class %s needs", len(funds), id))
		return nil
	}
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = fmt.Sprintf("%s (%s)", c.DisplayName(), c)
	}
	PrintWarning(fmt.Sprintf("%s needs asset classes the fund list does not cover:", id))
	PrintList(names)
	return nil
}

// parseRegimeArg accepts REGIME_C, regime_c or just C
func parseRegimeArg(s string) (regime.ID, error) {
	return regime.ParseID(strings.ToUpper(strings.TrimSpace(s)))
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
