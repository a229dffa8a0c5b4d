package report

import "time"

const (
	reportTimeLayout = "Mon 02 Jan 2006 03:04:05 PM"
	targetTimeLayout = "Mon 15:04:05"
)

// TargetView is the JSON rendering of one TargetStats.
type TargetView struct {
	Host           string `json:"host"`
	Desc           string `json:"desc"`
	Test           string `json:"test"`
	Good           bool   `json:"good"`
	Status         string `json:"status"`
	LastStat       string `json:"last_stat"`
	RTT            string `json:"rtt"`
	Total          int    `json:"total"`
	TotalSuccesses int    `json:"total_successes"`
	SuccessPercent string `json:"success_percent"`
	LastGood       string `json:"last_good"`
	LastBad        string `json:"last_bad"`
	LastBadStatus  string `json:"last_bad_status"`
	Pos            int    `json:"pos"`
}

// View is the JSON rendering of a Report. Started and Time are false until set.
type View struct {
	Started  any          `json:"started"`
	Time     any          `json:"time"`
	Count    int          `json:"count"`
	Duration string       `json:"duration"`
	Elapsed  string       `json:"elapsed"`
	Tests    []TargetView `json:"tests"`
}

// View renders r; now is used for the elapsed time.
func (r Report) View(now time.Time) View {
	v := View{
		Started:  reportTime(r.StartedAt),
		Time:     reportTime(r.LastTickAt),
		Count:    r.TickCount,
		Duration: Unset,
		Elapsed:  Unset,
		Tests:    make([]TargetView, 0, len(r.Targets)),
	}
	if r.LastTickDuration > 0 {
		v.Duration = r.LastTickDuration.Truncate(time.Millisecond).String()
	}
	if !r.StartedAt.IsZero() {
		v.Elapsed = now.Sub(r.StartedAt).Truncate(time.Second).String()
	}
	for _, stats := range r.Targets {
		v.Tests = append(v.Tests, stats.View())
	}
	return v
}

// View renders s.
func (s TargetStats) View() TargetView {
	return TargetView{
		Host:           s.Host,
		Desc:           s.Description,
		Test:           string(s.Kind),
		Good:           s.Good,
		Status:         s.CurrentStatus,
		LastStat:       s.PreviousStatus,
		RTT:            s.RTT(),
		Total:          s.Total,
		TotalSuccesses: s.Successes,
		SuccessPercent: s.SuccessPercent(),
		LastGood:       targetTime(s.LastGoodAt),
		LastBad:        targetTime(s.LastBadAt),
		LastBadStatus:  s.LastBadStatus,
		Pos:            s.Position,
	}
}

func reportTime(t time.Time) any {
	if t.IsZero() {
		return false
	}
	return t.Format(reportTimeLayout)
}

func targetTime(t time.Time) string {
	if t.IsZero() {
		return Unset
	}
	return t.Format(targetTimeLayout)
}
