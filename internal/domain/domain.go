package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentPending  AgentStatus = "pending"
	AgentInactive AgentStatus = "inactive"
)

// ID identifies an agent. Snapshots written by older clients stored agent
// ids as JSON numbers, so both numbers and strings decode into an ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("agent id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Country struct {
	Name string `json:"name"`
	Flag string `json:"flag,omitempty"`
	Code string `json:"code"`
}

type AgentStats struct {
	Available  int `json:"available"`
	Pending    int `json:"pending"`
	Consumed   int `json:"consumed"`
	TotalCalls int `json:"totalCalls"`
}

type Performance struct {
	SuccessRate     float64 `json:"successRate"`
	AvgCallDuration string  `json:"avgCallDuration"`
	ConversionRate  float64 `json:"conversionRate"`
}

type Agent struct {
	ID                   ID             `json:"id"`
	Name                 string         `json:"name"`
	Role                 string         `json:"role"`
	Status               AgentStatus    `json:"status" enum:"active,pending,inactive"`
	Country              Country        `json:"country"`
	Language             string         `json:"language"`
	Specializations      []string       `json:"specializations"`
	JoinDate             string         `json:"joinDate"`
	LastActive           string         `json:"lastActive"`
	Stats                AgentStats     `json:"stats"`
	Performance          Performance    `json:"performance"`
	AssignedPhoneNumbers []string       `json:"assignedPhoneNumbers"`
	Configuration        map[string]any `json:"configuration,omitempty"`
}

// Normalize fills documented defaults for fields an older snapshot may lack.
func (a *Agent) Normalize() {
	if a.Status == "" {
		a.Status = AgentActive
	}
	if a.Performance.AvgCallDuration == "" {
		a.Performance.AvgCallDuration = "00:00"
	}
	if a.Specializations == nil {
		a.Specializations = []string{}
	}
	if a.AssignedPhoneNumbers == nil {
		a.AssignedPhoneNumbers = []string{}
	}
}

// Clone returns a deep copy so callers can't mutate registry state.
func (a Agent) Clone() Agent {
	out := a
	out.Specializations = append([]string{}, a.Specializations...)
	out.AssignedPhoneNumbers = append([]string{}, a.AssignedPhoneNumbers...)
	if a.Configuration != nil {
		out.Configuration = make(map[string]any, len(a.Configuration))
		for k, v := range a.Configuration {
			out.Configuration[k] = v
		}
	}
	return out
}

type PhoneNumber struct {
	ID          string  `json:"id"`
	Number      string  `json:"number"`
	AgentID     *ID     `json:"agentId"`
	Price       float64 `json:"price,omitempty"`
	PurchasedAt string  `json:"purchasedAt,omitempty" format:"date-time"`
}

// AssignedTo reports whether the record currently points at agentID.
func (p PhoneNumber) AssignedTo(agentID ID) bool {
	return p.AgentID != nil && *p.AgentID == agentID
}

type CatalogEntry struct {
	Number  string  `json:"number" yaml:"number"`
	Country string  `json:"country" yaml:"country"`
	Type    string  `json:"type" yaml:"type"`
	Price   float64 `json:"price" yaml:"price"`
}

type Campaign struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Status   string `json:"status" yaml:"status"`
	Progress int    `json:"progress" yaml:"progress"`
}

func (c Campaign) Active() bool { return c.Status == "active" }

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
