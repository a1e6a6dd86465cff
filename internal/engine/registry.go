package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"callfleet/internal/domain"
	"callfleet/internal/events"
	"callfleet/internal/repo"
)

// Registry owns the agent list persisted under repo.KeyAgents.
type Registry struct {
	*deps

	mu     sync.Mutex
	loaded bool
	agents []domain.Agent
	lastID int64
	// unreadable is set while the stored snapshot could not be loaded and
	// the seed set is served in its place. Writes are refused until a
	// re-read succeeds.
	unreadable error
}

// ErrAgentsUnreadable is returned by writes while the stored agent list
// cannot be read or parsed.
var ErrAgentsUnreadable = errors.New("stored agents are unreadable")

// AgentDraft is the input of AddAgent.
type AgentDraft struct {
	Name            string         `json:"name"`
	Role            string         `json:"role"`
	Country         domain.Country `json:"country"`
	Language        string         `json:"language"`
	Specializations []string       `json:"specializations"`
	Configuration   map[string]any `json:"configuration,omitempty"`
}

// Initialize loads the persisted agents, seeding the defaults when nothing
// is stored yet. Read and parse failures fall back to the seed set without
// touching the stored value.
func (r *Registry) Initialize(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked(ctx)
}

func (r *Registry) initLocked(ctx context.Context) {
	if r.loaded {
		return
	}
	r.loaded = true
	agents, err := r.read(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		r.setLocked(DefaultAgents())
		if err := r.persist(ctx, r.agents, nil); err != nil {
			r.log.Warn().Err(err).Msg("persist seed agents failed")
		}
		return
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("load agents failed, using seed agents")
		r.setLocked(DefaultAgents())
		r.unreadable = err
		return
	}
	r.setLocked(agents)
}

func (r *Registry) read(ctx context.Context) ([]domain.Agent, error) {
	raw, err := r.store.Get(ctx, repo.KeyAgents)
	if err != nil {
		return nil, err
	}
	agents, err := decodeAgents(raw)
	if err != nil {
		return nil, fmt.Errorf("parse agents: %w", err)
	}
	return agents, nil
}

// writableLocked re-reads the stored snapshot when the last load failed, so
// a write never replaces agents it could not see.
func (r *Registry) writableLocked(ctx context.Context) error {
	r.initLocked(ctx)
	if r.unreadable == nil {
		return nil
	}
	agents, err := r.read(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		r.unreadable = nil
		return nil
	}
	if err != nil {
		r.unreadable = err
		return fmt.Errorf("%w: %v", ErrAgentsUnreadable, err)
	}
	r.unreadable = nil
	r.setLocked(agents)
	return nil
}

func decodeAgents(raw string) ([]domain.Agent, error) {
	var agents []domain.Agent
	if err := json.Unmarshal([]byte(raw), &agents); err != nil {
		return nil, err
	}
	for i := range agents {
		agents[i].Normalize()
	}
	return agents, nil
}

func (r *Registry) setLocked(agents []domain.Agent) {
	r.agents = agents
	for _, a := range agents {
		if n, err := strconv.ParseInt(string(a.ID), 10, 64); err == nil && n > r.lastID {
			r.lastID = n
		}
	}
}

// persist writes agents plus any extra keys in one store call.
func (r *Registry) persist(ctx context.Context, agents []domain.Agent, extra map[string]string) error {
	data, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	values := map[string]string{repo.KeyAgents: string(data)}
	for k, v := range extra {
		values[k] = v
	}
	return r.store.SetMany(ctx, values)
}

// ListAgents returns a copy of the agents in insertion order.
func (r *Registry) ListAgents(ctx context.Context) []domain.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked(ctx)
	return cloneAgents(r.agents)
}

// GetAgent returns the agent with id or repo.ErrNotFound.
func (r *Registry) GetAgent(ctx context.Context, id domain.ID) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked(ctx)
	for _, a := range r.agents {
		if a.ID == id {
			return a.Clone(), nil
		}
	}
	return domain.Agent{}, fmt.Errorf("agent %s: %w", id, repo.ErrNotFound)
}

// AddAgent creates an active agent with zeroed stats and persists the list.
// The draft is not validated here; see ValidateDraft.
func (r *Registry) AddAgent(ctx context.Context, draft AgentDraft) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writableLocked(ctx); err != nil {
		return domain.Agent{}, fmt.Errorf("save agent: %w", err)
	}

	now := r.clock()
	id := now.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	agent := domain.Agent{
		ID:              domain.ID(strconv.FormatInt(id, 10)),
		Name:            draft.Name,
		Role:            draft.Role,
		Status:          domain.AgentActive,
		Country:         draft.Country,
		Language:        draft.Language,
		Specializations: append([]string{}, draft.Specializations...),
		JoinDate:        now.Format("2006-01-02"),
		LastActive:      "just now",
		Performance:     domain.Performance{AvgCallDuration: "00:00"},
		Configuration:   draft.Configuration,
	}
	agent.Normalize()

	next := append(cloneAgents(r.agents), agent)
	if err := r.persist(ctx, next, nil); err != nil {
		return domain.Agent{}, fmt.Errorf("save agent: %w", err)
	}
	r.agents = next
	r.lastID = id
	r.record(ctx, "agent.created", "agent", string(agent.ID), events.EventPayload{"name": agent.Name, "role": agent.Role})
	return agent.Clone(), nil
}

// ReplaceAll overwrites the agent list. Assigned numbers in agents are
// ignored and recomputed from the inventory. It is also the way to replace
// an unreadable stored list.
func (r *Registry) ReplaceAll(ctx context.Context, agents []domain.Agent) error {
	r.numbersMu.Lock()
	defer r.numbersMu.Unlock()
	inv := Inventory{deps: r.deps}
	numbers, err := inv.load(ctx)
	if err != nil {
		return fmt.Errorf("save agents: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.initLocked(ctx)
	next := cloneAgents(agents)
	for i := range next {
		next[i].Normalize()
	}
	next = Link(next, numbers)
	if err := r.persist(ctx, next, nil); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	r.unreadable = nil
	r.setLocked(next)
	r.record(ctx, "agents.replaced", "agent", "", events.EventPayload{"count": len(next)})
	return nil
}

// relink recomputes every agent's assigned numbers from numbers and writes
// agents and the extra keys together. The snapshot changes only on success.
func (r *Registry) relink(ctx context.Context, numbers []domain.PhoneNumber, extra map[string]string) ([]domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writableLocked(ctx); err != nil {
		return nil, err
	}
	next := Link(r.agents, numbers)
	if err := r.persist(ctx, next, extra); err != nil {
		return nil, err
	}
	r.agents = next
	return cloneAgents(next), nil
}

// Link returns copies of agents whose AssignedPhoneNumbers list the numbers
// pointing at them, in inventory order.
func Link(agents []domain.Agent, numbers []domain.PhoneNumber) []domain.Agent {
	byAgent := map[domain.ID][]string{}
	for _, n := range numbers {
		if n.AgentID == nil {
			continue
		}
		byAgent[*n.AgentID] = append(byAgent[*n.AgentID], n.Number)
	}
	out := cloneAgents(agents)
	for i := range out {
		assigned := byAgent[out[i].ID]
		if assigned == nil {
			assigned = []string{}
		}
		out[i].AssignedPhoneNumbers = assigned
	}
	return out
}

func cloneAgents(in []domain.Agent) []domain.Agent {
	out := make([]domain.Agent, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
