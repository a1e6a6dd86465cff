// Package stats derives dashboard figures from agents and campaigns. Every
// function is pure; callers pass the current snapshots in.
package stats

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"callfleet/internal/domain"
)

const (
	LowCreditThreshold    = 1000
	MaxCampaignAlerts     = 3
	MaxLowPerformerAlerts = 2
	LowPerformanceBelow   = 50
	TopPerformanceAbove   = 80
	DefaultSeriesDays     = 30
	seriesDivisor         = 30
	seriesNoiseAmplitude  = 20
)

type Summary struct {
	TotalAgents      int    `json:"totalAgents"`
	ActiveAgents     int    `json:"activeAgents"`
	TotalCalls       int    `json:"totalCalls"`
	AverageDuration  string `json:"averageDuration"`
	SuccessRate      int    `json:"successRate"`
	ConversionRate   int    `json:"conversionRate"`
	AvailableCredits int    `json:"availableCredits"`
}

func active(agents []domain.Agent) []domain.Agent {
	var out []domain.Agent
	for _, a := range agents {
		if a.Status == domain.AgentActive {
			out = append(out, a)
		}
	}
	return out
}

// Summarize computes the fleet-wide dashboard figures. Means are taken over
// active agents and are zero when there are none.
func Summarize(agents []domain.Agent) Summary {
	act := active(agents)
	s := Summary{
		TotalAgents:     len(agents),
		ActiveAgents:    len(act),
		AverageDuration: "00:00",
	}
	for _, a := range agents {
		s.TotalCalls += a.Stats.TotalCalls
		s.AvailableCredits += a.Stats.Available
	}
	if len(act) == 0 {
		return s
	}
	var seconds int
	var success, conversion float64
	for _, a := range act {
		seconds += ParseDuration(a.Performance.AvgCallDuration)
		success += a.Performance.SuccessRate
		conversion += a.Performance.ConversionRate
	}
	n := float64(len(act))
	s.AverageDuration = FormatDuration(int(math.Round(float64(seconds) / n)))
	s.SuccessRate = int(math.Round(success / n))
	s.ConversionRate = int(math.Round(conversion / n))
	return s
}

// ParseDuration reads "m:ss" or "mm:ss" into seconds. Malformed input is 0.
func ParseDuration(v string) int {
	mins, secs, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0
	}
	m, err := strconv.Atoi(mins)
	if err != nil || m < 0 {
		return 0
	}
	s, err := strconv.Atoi(secs)
	if err != nil || s < 0 {
		return 0
	}
	return m*60 + s
}

// FormatDuration renders seconds as zero-padded "mm:ss".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// NotificationCount is the badge count shown on the dashboard:
// low credit (1) + active campaigns (max 3) + low performers (max 2) + a top performer (1).
func NotificationCount(agents []domain.Agent, campaigns []domain.Campaign) int {
	count := 0
	if Summarize(agents).AvailableCredits < LowCreditThreshold {
		count++
	}
	count += min(countActiveCampaigns(campaigns), MaxCampaignAlerts)
	low, top := 0, false
	for _, a := range active(agents) {
		if a.Performance.SuccessRate < LowPerformanceBelow {
			low++
		}
		if a.Performance.SuccessRate > TopPerformanceAbove {
			top = true
		}
	}
	count += min(low, MaxLowPerformerAlerts)
	if top {
		count++
	}
	return count
}

func countActiveCampaigns(campaigns []domain.Campaign) int {
	n := 0
	for _, c := range campaigns {
		if c.Active() {
			n++
		}
	}
	return n
}

type Notification struct {
	Kind       string    `json:"kind" enum:"low_credit,campaign,low_performance,top_performer"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	AgentID    domain.ID `json:"agent_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

// Notifications itemizes the alerts counted by NotificationCount.
func Notifications(agents []domain.Agent, campaigns []domain.Campaign) []Notification {
	out := []Notification{}
	if credits := Summarize(agents).AvailableCredits; credits < LowCreditThreshold {
		out = append(out, Notification{
			Kind:    "low_credit",
			Title:   "Low credit balance",
			Message: fmt.Sprintf("%d credits left across all agents", credits),
		})
	}
	shown := 0
	for _, c := range campaigns {
		if !c.Active() || shown == MaxCampaignAlerts {
			continue
		}
		shown++
		out = append(out, Notification{
			Kind:       "campaign",
			Title:      c.Name,
			Message:    fmt.Sprintf("Campaign is %d%% complete", c.Progress),
			CampaignID: c.ID,
		})
	}
	shown = 0
	var top *domain.Agent
	for _, a := range active(agents) {
		if a.Performance.SuccessRate < LowPerformanceBelow && shown < MaxLowPerformerAlerts {
			shown++
			out = append(out, Notification{
				Kind:    "low_performance",
				Title:   a.Name + " needs attention",
				Message: fmt.Sprintf("Success rate %.0f%%", a.Performance.SuccessRate),
				AgentID: a.ID,
			})
		}
		if a.Performance.SuccessRate > TopPerformanceAbove && top == nil {
			a := a
			top = &a
		}
	}
	if top != nil {
		out = append(out, Notification{
			Kind:    "top_performer",
			Title:   top.Name + " is performing well",
			Message: fmt.Sprintf("Success rate %.0f%%", top.Performance.SuccessRate),
			AgentID: top.ID,
		})
	}
	return out
}

type Point struct {
	Date  string `json:"date"`
	Calls int    `json:"calls"`
}

// CallSeries builds the synthetic daily call chart for the days ending at
// now, oldest first. The values are display data, not a forecast.
func CallSeries(agents []domain.Agent, now time.Time, rng *rand.Rand, days int) []Point {
	if days <= 0 {
		days = DefaultSeriesDays
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	act := active(agents)
	var base float64
	if len(act) > 0 {
		total := 0
		for _, a := range act {
			total += a.Stats.TotalCalls
		}
		perAgent := float64(total) / float64(len(act))
		base = perAgent * float64(len(act)) / seriesDivisor
	}
	out := make([]Point, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		noise := rng.Intn(2*seriesNoiseAmplitude) - seriesNoiseAmplitude
		v := int(math.Round(base + float64(noise)))
		if v < 0 {
			v = 0
		}
		out = append(out, Point{Date: day.Format("2006-01-02"), Calls: v})
	}
	return out
}
