package macro

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/wonny/regimelab/backend/pkg/logger"
)

// ParseReport summarises what Prepare accepted and dropped
type ParseReport struct {
	Accepted   int         `json:"accepted"`
	Rejected   []Rejection `json:"rejected,omitempty"`
	Duplicates []string    `json:"duplicates,omitempty"` // months seen more than once (last wins)
}

// Rejection describes one skipped record
type Rejection struct {
	Index  int    `json:"index"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// Prepare validates dates, sorts ascending, drops duplicate months (last wins)
// and forward-fills raw values. Malformed records are skipped and reported,
// never fatal; only an empty result is an error.
func Prepare(records []Record) ([]Record, *ParseReport, error) {
	ordered, report := order(records)
	if len(ordered) == 0 {
		return nil, report, ErrNoData
	}
	return ForwardFill(ordered), report, nil
}

// order validates dates, dedupes by month and sorts ascending without filling
func order(records []Record) ([]Record, *ParseReport) {
	report := &ParseReport{}

	type dated struct {
		key   string
		index int
		rec   Record
	}
	byMonth := make(map[string]dated, len(records))

	for i, rec := range records {
		month, err := rec.Month()
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{
				Index:  i,
				Date:   rec.Date,
				Reason: err.Error(),
			})
			continue
		}

		key := MonthKey(month)
		if _, seen := byMonth[key]; seen {
			report.Duplicates = append(report.Duplicates, key)
		}
		rec.Date = key
		byMonth[key] = dated{key: key, index: i, rec: rec}
	}

	ordered := make([]dated, 0, len(byMonth))
	for _, d := range byMonth {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].key < ordered[j].key })

	out := make([]Record, len(ordered))
	for i, d := range ordered {
		out[i] = d.rec
	}
	report.Accepted = len(out)

	return out, report
}

// Decode reads a JSON array of records as-is (no validation, no fill)
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode macro json: %w", err)
	}
	return records, nil
}

// Parse decodes a JSON array of records and prepares it
func Parse(r io.Reader) ([]Record, *ParseReport, error) {
	records, err := Decode(r)
	if err != nil {
		return nil, nil, err
	}
	return Prepare(records)
}

// Loader reads macro data files and logs what was skipped
// ⭐ SSOT: 거시 데이터 파일 입력 경계는 여기서만
type Loader struct {
	logger *logger.Logger
}

// NewLoader creates a macro loader
func NewLoader(log *logger.Logger) *Loader {
	return &Loader{logger: log.WithComponent("macro.loader")}
}

// LoadFile reads and prepares the JSON macro file at path
func (l *Loader) LoadFile(path string) ([]Record, *ParseReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open macro file: %w", err)
	}
	defer f.Close()

	records, report, err := Parse(f)
	if report != nil {
		l.logReport(path, report)
	}
	if err != nil {
		return nil, report, err
	}
	return records, report, nil
}

func (l *Loader) logReport(source string, report *ParseReport) {
	for _, rej := range report.Rejected {
		l.logger.WithFields(map[string]interface{}{
			"source": source,
			"index":  rej.Index,
			"date":   rej.Date,
		}).Warnf("macro record skipped: %s", rej.Reason)
	}
	if len(report.Duplicates) > 0 {
		l.logger.WithFields(map[string]interface{}{
			"source": source,
			"months": report.Duplicates,
		}).Warn("duplicate macro months, keeping last occurrence")
	}
	l.logger.WithFields(map[string]interface{}{
		"source":   source,
		"accepted": report.Accepted,
		"rejected": len(report.Rejected),
	}).Info("macro data loaded")
}
