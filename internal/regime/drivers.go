package regime

// Transition a change of dominant regime between consecutive months
type Transition struct {
	Date    string   `json:"date"`
	From    ID       `json:"from"`
	To      ID       `json:"to"`
	Drivers []string `json:"drivers"`
}

// TrendShift is reported when no single pillar explains a transition
const TrendShift = "Trend Shift"

// TransitionDrivers pillars that are high (>0.7) and rose by more than 0.1
// since the previous month
func TransitionDrivers(prev, cur Detection) []string {
	var drivers []string
	for _, p := range Pillars() {
		score, ok := cur.Scores[p]
		if !ok || score <= 0.7 {
			continue
		}
		before, had := prev.Scores[p]
		if !had || score > before+0.1 {
			drivers = append(drivers, string(p))
		}
	}
	if len(drivers) == 0 {
		return []string{TrendShift}
	}
	return drivers
}

// Transitions every change of dominant regime in h
func (h History) Transitions() []Transition {
	var out []Transition
	for i := 1; i < len(h); i++ {
		if h[i].Dominant == h[i-1].Dominant {
			continue
		}
		out = append(out, Transition{
			Date:    h[i].Date,
			From:    h[i-1].Dominant,
			To:      h[i].Dominant,
			Drivers: TransitionDrivers(h[i-1], h[i]),
		})
	}
	return out
}
