package macro

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoData is returned when no usable macro record remains
	ErrNoData = errors.New("need macro history, got none")
	// ErrMalformedRecord marks a record without a parseable date
	ErrMalformedRecord = errors.New("malformed macro record")
	// ErrUnordered marks a sequence that is not strictly ascending by month
	ErrUnordered = errors.New("macro records not strictly ordered by month")
)

// Record 월별 거시지표 원천 레코드
// ⭐ 모든 수치 필드는 포인터 (nil = 해당 월 미제공)
// Override 필드는 파생값 계산보다 우선한다 (override > computed > proxy)
type Record struct {
	Date string `json:"date"` // YYYY-MM or YYYY-MM-DD

	// Raw fields
	RepoRate        *float64 `json:"repoRate,omitempty"`
	CPIInflation    *float64 `json:"cpiInflation,omitempty"`
	GDPGrowth       *float64 `json:"gdpGrowth,omitempty"`
	GSecYield       *float64 `json:"gSecYield,omitempty"`
	SP500           *float64 `json:"sp500,omitempty"`
	GoldPrice       *float64 `json:"goldPrice,omitempty"`
	FXRate          *float64 `json:"fxRate,omitempty"`
	ForexReserves   *float64 `json:"forexReserves,omitempty"`
	BankCredit      *float64 `json:"bankCredit,omitempty"`
	InterestExpense *float64 `json:"interest_expense,omitempty"`
	GDPIndex        *float64 `json:"gdpIndex,omitempty"`
	GDPNominal      *float64 `json:"gdpNominal,omitempty"`

	// Overrides
	RealRate         *float64 `json:"realRate,omitempty"`
	DebtStress       *float64 `json:"debtStress,omitempty"`
	CBGoldBuying     *float64 `json:"cbGoldBuying,omitempty"`
	BondEquityCorr   *float64 `json:"bondEquityCorr,omitempty"`
	InflationVol     *float64 `json:"inflationVol,omitempty"`
	VolatilityRatio  *float64 `json:"volatilityRatio,omitempty"`
	CreditSpread     *float64 `json:"creditSpread,omitempty"`
	EquityVolatility *float64 `json:"equityVolatility,omitempty"`
}

// field is a named handle on one optional raw value
type field struct {
	name string
	ptr  **float64
}

// rawFields lists the forward-fillable raw indicators in a fixed order
func (r *Record) rawFields() []field {
	return []field{
		{"repoRate", &r.RepoRate},
		{"cpiInflation", &r.CPIInflation},
		{"gdpGrowth", &r.GDPGrowth},
		{"gSecYield", &r.GSecYield},
		{"sp500", &r.SP500},
		{"goldPrice", &r.GoldPrice},
		{"fxRate", &r.FXRate},
		{"forexReserves", &r.ForexReserves},
		{"bankCredit", &r.BankCredit},
		{"interest_expense", &r.InterestExpense},
		{"gdpIndex", &r.GDPIndex},
		{"gdpNominal", &r.GDPNominal},
	}
}

// RawFieldNames returns the raw indicator names in canonical order
func RawFieldNames() []string {
	var r Record
	fields := r.rawFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

// Raw returns the named raw value (nil when absent or unknown)
func (r *Record) Raw(name string) *float64 {
	for _, f := range r.rawFields() {
		if f.name == name {
			return *f.ptr
		}
	}
	return nil
}

// Month parses Date into the first day of its month (UTC)
func (r *Record) Month() (time.Time, error) {
	return ParseMonth(r.Date)
}

// ParseMonth accepts YYYY-MM, YYYY-MM-DD or RFC3339 and truncates to the month
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing date", ErrMalformedRecord)
	}

	for _, layout := range []string{"2006-01", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", ErrMalformedRecord, s)
}

// MonthKey formats a month as YYYY-MM
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Float is a convenience constructor for optional fields
func Float(v float64) *float64 {
	return &v
}

// valueOr dereferences p or returns def
func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// clone returns a deep copy so forward fill never aliases caller data
func (r Record) clone() Record {
	out := r
	for _, f := range out.rawFields() {
		if *f.ptr != nil {
			v := **f.ptr
			*f.ptr = &v
		}
	}
	return out
}

// ForwardFill fills each missing raw value from the previous month.
// Overrides are not carried forward. Input is not modified.
func ForwardFill(records []Record) []Record {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].clone()
		if i == 0 {
			continue
		}
		prev := out[i-1].rawFields()
		for j, f := range out[i].rawFields() {
			if *f.ptr == nil && *prev[j].ptr != nil {
				v := **prev[j].ptr
				*f.ptr = &v
			}
		}
	}
	return out
}
