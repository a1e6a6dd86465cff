package stats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfleet/internal/domain"
)

func agent(id string, status domain.AgentStatus, success float64, duration string, available, calls int) domain.Agent {
	return domain.Agent{
		ID:          domain.ID(id),
		Name:        "agent-" + id,
		Status:      status,
		Stats:       domain.AgentStats{Available: available, TotalCalls: calls},
		Performance: domain.Performance{SuccessRate: success, AvgCallDuration: duration, ConversionRate: success / 2},
	}
}

func campaigns(active int) []domain.Campaign {
	var out []domain.Campaign
	for i := 0; i < active; i++ {
		out = append(out, domain.Campaign{ID: string(rune('a' + i)), Name: "c", Status: "active", Progress: 10})
	}
	return append(out, domain.Campaign{ID: "done", Status: "completed", Progress: 100})
}

func TestSummarize(t *testing.T) {
	agents := []domain.Agent{
		agent("1", domain.AgentActive, 70, "4:00", 500, 100),
		agent("2", domain.AgentActive, 61, "6:00", 300, 50),
		agent("3", domain.AgentInactive, 10, "59:59", 200, 25),
	}
	s := Summarize(agents)
	assert.Equal(t, 3, s.TotalAgents)
	assert.Equal(t, 2, s.ActiveAgents)
	assert.Equal(t, 175, s.TotalCalls)
	assert.Equal(t, "05:00", s.AverageDuration)
	assert.Equal(t, 66, s.SuccessRate)
	assert.Equal(t, 33, s.ConversionRate)
	assert.Equal(t, 1000, s.AvailableCredits)
}

func TestSummarizeWithoutActiveAgents(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, "00:00", s.AverageDuration)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.ConversionRate)

	s = Summarize([]domain.Agent{agent("1", domain.AgentPending, 90, "3:00", 10, 5)})
	assert.Equal(t, 1, s.TotalAgents)
	assert.Zero(t, s.ActiveAgents)
	assert.Zero(t, s.SuccessRate)
	assert.Equal(t, 10, s.AvailableCredits)
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 272, ParseDuration("4:32"))
	assert.Equal(t, 605, ParseDuration("10:05"))
	assert.Zero(t, ParseDuration("bogus"))
	assert.Zero(t, ParseDuration("-1:00"))
	assert.Equal(t, "04:32", FormatDuration(272))
	assert.Equal(t, "00:00", FormatDuration(-3))
	assert.Equal(t, "120:00", FormatDuration(7200))
}

func TestNotificationLowCreditBoundary(t *testing.T) {
	at999 := []domain.Agent{agent("1", domain.AgentActive, 60, "1:00", 999, 0)}
	assert.Equal(t, 1, NotificationCount(at999, nil))

	at1000 := []domain.Agent{agent("1", domain.AgentActive, 60, "1:00", 1000, 0)}
	assert.Equal(t, 0, NotificationCount(at1000, nil))
}

func TestNotificationCaps(t *testing.T) {
	rich := agent("0", domain.AgentInactive, 0, "", 5000, 0)
	assert.Equal(t, 3, NotificationCount([]domain.Agent{rich}, campaigns(5)))
	assert.Equal(t, 2, NotificationCount([]domain.Agent{rich}, campaigns(2)))

	agents := []domain.Agent{
		rich,
		agent("1", domain.AgentActive, 10, "1:00", 0, 0),
		agent("2", domain.AgentActive, 20, "1:00", 0, 0),
		agent("3", domain.AgentActive, 30, "1:00", 0, 0),
		agent("4", domain.AgentActive, 81, "1:00", 0, 0),
		agent("5", domain.AgentActive, 95, "1:00", 0, 0),
		agent("6", domain.AgentInactive, 5, "1:00", 0, 0),
	}
	// 2 capped low performers + 1 top performer + 3 capped campaigns
	assert.Equal(t, 6, NotificationCount(agents, campaigns(4)))
}

func TestNotificationsMatchCount(t *testing.T) {
	cases := map[string]struct {
		agents    []domain.Agent
		campaigns []domain.Campaign
	}{
		"empty": {},
		"busy": {
			agents: []domain.Agent{
				agent("1", domain.AgentActive, 10, "1:00", 100, 0),
				agent("2", domain.AgentActive, 20, "1:00", 100, 0),
				agent("3", domain.AgentActive, 30, "1:00", 100, 0),
				agent("4", domain.AgentActive, 85, "1:00", 100, 0),
			},
			campaigns: campaigns(5),
		},
		"exactly 80 is not top": {
			agents: []domain.Agent{agent("1", domain.AgentActive, 80, "1:00", 2000, 0)},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			items := Notifications(tc.agents, tc.campaigns)
			assert.Len(t, items, NotificationCount(tc.agents, tc.campaigns))
		})
	}
}

func TestCallSeries(t *testing.T) {
	now := time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)
	agents := []domain.Agent{
		agent("1", domain.AgentActive, 50, "1:00", 0, 900),
		agent("2", domain.AgentActive, 50, "1:00", 0, 600),
		agent("3", domain.AgentInactive, 50, "1:00", 0, 100000),
	}
	points := CallSeries(agents, now, rand.New(rand.NewSource(7)), 0)
	require.Len(t, points, DefaultSeriesDays)
	assert.Equal(t, "2024-03-02", points[0].Date)
	assert.Equal(t, "2024-03-31", points[len(points)-1].Date)
	for _, p := range points {
		// base is 1500/30 = 50, noise stays within [-20, 20)
		assert.GreaterOrEqual(t, p.Calls, 30)
		assert.Less(t, p.Calls, 70)
	}

	again := CallSeries(agents, now, rand.New(rand.NewSource(7)), 0)
	assert.Equal(t, points, again)
}

func TestCallSeriesClampsAtZero(t *testing.T) {
	points := CallSeries(nil, time.Now(), rand.New(rand.NewSource(1)), 7)
	require.Len(t, points, 7)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Calls, 0)
		assert.LessOrEqual(t, p.Calls, 19)
	}
}
