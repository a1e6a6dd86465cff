package server

import (
	"strings"

	"callfleet/internal/domain"
	"callfleet/internal/engine"
	"callfleet/internal/stats"
)

// Request payloads

type CountryRequest struct {
	Name string `json:"name,omitempty"`
	Flag string `json:"flag,omitempty"`
	Code string `json:"code,omitempty"`
}

type CreateAgentRequest struct {
	Name            string         `json:"name"`
	Role            string         `json:"role,omitempty"`
	Country         CountryRequest `json:"country"`
	Language        string         `json:"language,omitempty"`
	Specializations []string       `json:"specializations,omitempty"`
	Configuration   map[string]any `json:"configuration,omitempty"`
}

func (r CreateAgentRequest) draft() engine.AgentDraft {
	return engine.AgentDraft{
		Name:            strings.TrimSpace(r.Name),
		Role:            r.Role,
		Country:         domain.Country{Name: r.Country.Name, Flag: r.Country.Flag, Code: r.Country.Code},
		Language:        r.Language,
		Specializations: r.Specializations,
		Configuration:   r.Configuration,
	}
}

type PurchaseRequest struct {
	Numbers []string `json:"numbers"`
}

type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// Response payloads

type AgentListResponse struct {
	Items []domain.Agent `json:"items"`
}

type NumberListResponse struct {
	Items []domain.PhoneNumber `json:"items"`
}

type CatalogResponse struct {
	Items []domain.CatalogEntry `json:"items"`
}

type CampaignListResponse struct {
	Items []domain.Campaign `json:"items"`
}

type DashboardResponse struct {
	Summary       stats.Summary `json:"summary"`
	Notifications int           `json:"notifications"`
}

type NotificationsResponse struct {
	Count int                  `json:"count"`
	Items []stats.Notification `json:"items"`
}

type ChartResponse struct {
	Points []stats.Point `json:"points"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	Subject string `json:"subject"`
	Source  string `json:"source"`
}
