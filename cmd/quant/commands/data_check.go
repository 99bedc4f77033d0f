package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/regimelab/backend/internal/macro"
)

// dataCmd represents the data command group
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "거시 데이터 점검",
}

// dataCheckCmd represents the data check command
var dataCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "거시 데이터 품질 확인",
	Long: `거시 데이터 JSON의 품질을 확인합니다.

확인 항목:
- 날짜 형식 / 중복 월
- 지표별 커버리지와 최장 결측 구간 (forward fill 이전)
- 핵심 지표(repo, CPI, GDP, 국채, 주가)가 모두 있는 월 비율
- --zscores: 지표별 최근 60개월 z-score

Example:
  go run ./cmd/quant data check
  go run ./cmd/quant data check --macro data/macro.json --zscores`,
	RunE: runDataCheck,
}

var (
	dataMacroPath string
	dataZScores   bool
	dataMinScore  int
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataCheckCmd)

	dataCheckCmd.Flags().StringVar(&dataMacroPath, "macro", "", "거시 데이터 JSON (기본: MACRO_DATA_PATH)")
	dataCheckCmd.Flags().BoolVar(&dataZScores, "zscores", false, "지표별 최근 z-score 표시")
	dataCheckCmd.Flags().IntVar(&dataMinScore, "min-score", 0, "품질 점수가 이보다 낮으면 실패 (0~100)")
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	path := dataMacroPath
	if path == "" {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		path = cfg.Regime.MacroDataPath
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open macro file: %w", err)
	}
	defer f.Close()

	raw, err := macro.Decode(f)
	if err != nil {
		return err
	}
	records, parse, prepErr := macro.Prepare(raw)
	quality := macro.Quality(raw)

	var zscores map[string][]macro.ZScore
	if dataZScores && prepErr == nil {
		zscores = macro.NewNormalizer(macro.DefaultOptions()).ZScoreTable(records)
	}

	if outputJSON {
		if err := printJSON(map[string]interface{}{
			"source":  path,
			"parse":   parse,
			"quality": quality,
			"zscores": latestZScores(zscores),
		}); err != nil {
			return err
		}
	} else {
		printDataCheck(path, parse, quality, zscores)
	}

	if prepErr != nil {
		return fmt.Errorf("macro data unusable: %w", prepErr)
	}
	if quality.Score < dataMinScore {
		return fmt.Errorf("quality score %d below minimum %d", quality.Score, dataMinScore)
	}
	return nil
}

func printDataCheck(path string, parse *macro.ParseReport, q macro.QualityReport, zscores map[string][]macro.ZScore) {
	fmt.Println("=== RegimeLab Macro Data Check ===")
	PrintKeyValue("Source", path, 10)
	PrintKeyValue("Period", fmt.Sprintf("%s ~ %s (%d months)", q.Start, q.End, q.Months), 10)
	PrintKeyValue("Complete", fmt.Sprintf("%d months", q.Complete), 10)
	PrintKeyValue("Score", fmt.Sprintf("%d/100", q.Score), 10)
	fmt.Println()

	if parse != nil {
		for _, rej := range parse.Rejected {
			PrintError(fmt.Sprintf("record %d (%q) skipped: %s", rej.Index, rej.Date, rej.Reason))
		}
		if len(parse.Duplicates) > 0 {
			PrintWarning(fmt.Sprintf("duplicate months (last wins): %v", parse.Duplicates))
		}
	}
	if q.MissingCPI {
		PrintWarning("cpiInflation is missing entirely; real rate and inflation pillars fall back to neutral")
	}

	fmt.Println("📋 Field Coverage")
	widths := []int{20, 8, 9, 12}
	PrintTableHeader([]string{"Field", "Present", "Coverage", "Longest Gap"}, widths)
	for _, fc := range q.Fields {
		PrintTableRow([]string{
			fc.Field,
			fmt.Sprintf("%d", fc.Present),
			fmt.Sprintf("%.0f%%", fc.Coverage*100),
			fmt.Sprintf("%d", fc.LongestGap),
		}, widths)
	}

	if len(zscores) > 0 {
		fmt.Println("\n📈 Latest Z-Scores (60M window)")
		latest := latestZScores(zscores)
		names := make([]string, 0, len(latest))
		for name := range latest {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			z := latest[name]
			fmt.Printf("   %-20s %8.2f  (z %+.2f)\n", name, z.Value, z.Z)
		}
	}
	fmt.Println()
}

func latestZScores(table map[string][]macro.ZScore) map[string]macro.ZScore {
	out := make(map[string]macro.ZScore, len(table))
	for name, zs := range table {
		if len(zs) > 0 {
			out[name] = zs[len(zs)-1]
		}
	}
	return out
}
