package engine

import (
	"context"
	"fmt"
	"strings"

	"callfleet/internal/domain"
	"callfleet/internal/events"
	"callfleet/internal/repo"
)

// Reconciler is the only writer of agent <-> number links. An agent holds at
// most one number through Assign; the last completed assignment wins.
type Reconciler struct {
	*deps
	registry *Registry
}

// Assignment describes the state after an Assign call.
type Assignment struct {
	NumberID string    `json:"number_id"`
	Number   string    `json:"number,omitempty"`
	AgentID  domain.ID `json:"agent_id"`
	// Applied is false when numberID matched no owned number.
	Applied bool `json:"applied"`
	// Revoked lists ids of numbers that no longer point at the agent.
	Revoked []string `json:"revoked"`
}

// Assign points numberID at agentID after revoking the agent from every
// other number, then rewrites numbers and agents in one store write.
func (rc *Reconciler) Assign(ctx context.Context, numberID string, agentID domain.ID) (Assignment, error) {
	numberID = strings.TrimSpace(numberID)
	agentID = domain.ID(strings.TrimSpace(string(agentID)))
	if numberID == "" {
		return Assignment{}, ValidationError{Field: "number_id", Message: "number id is required"}
	}
	if agentID == "" {
		return Assignment{}, ValidationError{Field: "agent_id", Message: "agent id is required"}
	}
	if _, err := rc.registry.GetAgent(ctx, agentID); err != nil {
		return Assignment{}, err
	}

	rc.numbersMu.Lock()
	defer rc.numbersMu.Unlock()

	numbers, err := rc.loadNumbers(ctx)
	if err != nil {
		return Assignment{}, fmt.Errorf("assign failed: %w", err)
	}
	res := Assignment{NumberID: numberID, AgentID: agentID, Revoked: []string{}}
	for i := range numbers {
		n := &numbers[i]
		if n.ID != numberID && n.AssignedTo(agentID) {
			n.AgentID = nil
			res.Revoked = append(res.Revoked, n.ID)
		}
	}
	for i := range numbers {
		if numbers[i].ID == numberID {
			id := agentID
			numbers[i].AgentID = &id
			res.Applied = true
			res.Number = numbers[i].Number
		}
	}
	if err := rc.commit(ctx, numbers); err != nil {
		return Assignment{}, fmt.Errorf("assign failed: %w", err)
	}
	rc.record(ctx, "number.assigned", "phone_number", numberID, events.EventPayload{
		"agent_id": string(agentID),
		"applied":  res.Applied,
		"revoked":  res.Revoked,
	})
	return res, nil
}

// Reconcile recomputes every agent's assigned numbers from the inventory
// without changing any assignment.
func (rc *Reconciler) Reconcile(ctx context.Context) ([]domain.Agent, error) {
	rc.numbersMu.Lock()
	defer rc.numbersMu.Unlock()
	numbers, err := rc.loadNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile failed: %w", err)
	}
	payload, err := encodeNumbers(numbers)
	if err != nil {
		return nil, err
	}
	agents, err := rc.registry.relink(ctx, numbers, map[string]string{repo.KeyPhoneNumbers: payload})
	if err != nil {
		return nil, fmt.Errorf("reconcile failed: %w", err)
	}
	rc.record(ctx, "numbers.reconciled", "phone_number", "", events.EventPayload{"numbers": len(numbers)})
	return agents, nil
}

func (rc *Reconciler) loadNumbers(ctx context.Context) ([]domain.PhoneNumber, error) {
	inv := Inventory{deps: rc.deps}
	return inv.load(ctx)
}

func (rc *Reconciler) commit(ctx context.Context, numbers []domain.PhoneNumber) error {
	payload, err := encodeNumbers(numbers)
	if err != nil {
		return err
	}
	_, err = rc.registry.relink(ctx, numbers, map[string]string{repo.KeyPhoneNumbers: payload})
	return err
}
