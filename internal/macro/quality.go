package macro

import (
	"math"
	"sort"
)

// FieldCoverage coverage of one raw indicator before forward fill
type FieldCoverage struct {
	Field      string  `json:"field"`
	Present    int     `json:"present"`
	Coverage   float64 `json:"coverage"`    // 0~1
	LongestGap int     `json:"longest_gap"` // consecutive missing months after first observation
}

// QualityReport 거시 데이터 품질 요약
type QualityReport struct {
	Months     int             `json:"months"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	Complete   int             `json:"complete_months"` // months with every core field present
	Score      int             `json:"score"`           // 0~100
	Fields     []FieldCoverage `json:"fields"`
	MissingCPI bool            `json:"missing_cpi"`
}

// coreFields are required for the regime pillars to be fully computed
var coreFields = []string{"repoRate", "cpiInflation", "gdpGrowth", "gSecYield", "sp500"}

// Quality reports per-field coverage of raw records (before forward fill).
// Malformed and duplicate records are ignored the same way Prepare does.
func Quality(raw []Record) QualityReport {
	records, _ := order(raw)
	report := QualityReport{Months: len(records)}
	if len(records) == 0 {
		return report
	}
	report.Start = records[0].Date
	report.End = records[len(records)-1].Date

	for _, name := range RawFieldNames() {
		cov := FieldCoverage{Field: name}
		gap, seen := 0, false
		for i := range records {
			if records[i].Raw(name) != nil {
				cov.Present++
				seen = true
				gap = 0
				continue
			}
			if seen {
				gap++
				if gap > cov.LongestGap {
					cov.LongestGap = gap
				}
			}
		}
		cov.Coverage = float64(cov.Present) / float64(len(records))
		report.Fields = append(report.Fields, cov)
	}

	for i := range records {
		complete := true
		for _, name := range coreFields {
			if records[i].Raw(name) == nil {
				complete = false
				break
			}
		}
		if complete {
			report.Complete++
		}
	}

	report.Score = int(math.Round(float64(report.Complete) / float64(len(records)) * 100))
	for _, f := range report.Fields {
		if f.Field == "cpiInflation" && f.Present == 0 {
			report.MissingCPI = true
		}
	}

	sort.SliceStable(report.Fields, func(i, j int) bool {
		return report.Fields[i].Coverage > report.Fields[j].Coverage
	})
	return report
}
