package engine

import "callfleet/internal/domain"

// DefaultAgents is the seed set persisted on first use of a workspace.
func DefaultAgents() []domain.Agent {
	agents := []domain.Agent{
		{
			ID:              "1",
			Name:            "Sarah Johnson",
			Role:            "Sales Representative",
			Status:          domain.AgentActive,
			Country:         domain.Country{Name: "United States", Flag: "🇺🇸", Code: "US"},
			Language:        "English",
			Specializations: []string{"Lead Qualification", "Appointment Setting"},
			JoinDate:        "2024-01-15",
			LastActive:      "2 hours ago",
			Stats:           domain.AgentStats{Available: 450, Pending: 25, Consumed: 525, TotalCalls: 1250},
			Performance:     domain.Performance{SuccessRate: 87, AvgCallDuration: "4:32", ConversionRate: 23},
		},
		{
			ID:              "2",
			Name:            "Michael Chen",
			Role:            "Customer Support",
			Status:          domain.AgentActive,
			Country:         domain.Country{Name: "United Kingdom", Flag: "🇬🇧", Code: "GB"},
			Language:        "English",
			Specializations: []string{"Technical Support", "Billing Inquiries"},
			JoinDate:        "2024-02-03",
			LastActive:      "1 day ago",
			Stats:           domain.AgentStats{Available: 320, Pending: 10, Consumed: 370, TotalCalls: 890},
			Performance:     domain.Performance{SuccessRate: 72, AvgCallDuration: "6:15", ConversionRate: 18},
		},
		{
			ID:              "3",
			Name:            "Elena Rodriguez",
			Role:            "Survey Specialist",
			Status:          domain.AgentPending,
			Country:         domain.Country{Name: "Spain", Flag: "🇪🇸", Code: "ES"},
			Language:        "Spanish",
			Specializations: []string{"Market Research", "Customer Feedback"},
			JoinDate:        "2024-03-10",
			LastActive:      "3 days ago",
			Stats:           domain.AgentStats{Available: 150, Pending: 0, Consumed: 50, TotalCalls: 120},
			Performance:     domain.Performance{SuccessRate: 45, AvgCallDuration: "3:05", ConversionRate: 9},
		},
	}
	for i := range agents {
		agents[i].Normalize()
	}
	return agents
}
