package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"callfleet/internal/domain"
	"callfleet/internal/events"
	"callfleet/internal/repo"
)

// Inventory owns the purchased numbers persisted under repo.KeyPhoneNumbers.
type Inventory struct {
	*deps

	catalog    []domain.CatalogEntry
	payments   PaymentProcessor
	reconciler *Reconciler
}

// PurchaseResult is the outcome of a successful Purchase.
type PurchaseResult struct {
	Receipt Receipt              `json:"receipt"`
	Numbers []domain.PhoneNumber `json:"numbers"`
}

// ListOwned returns the purchased numbers, deduplicated by id. Read and parse
// failures are logged and yield an empty list.
func (inv *Inventory) ListOwned(ctx context.Context) []domain.PhoneNumber {
	numbers, err := inv.load(ctx)
	if err != nil {
		inv.log.Warn().Err(err).Msg("read phone numbers failed")
		return []domain.PhoneNumber{}
	}
	return numbers
}

// load reads the inventory strictly; callers that write back use it so a
// failed read never overwrites stored numbers.
func (inv *Inventory) load(ctx context.Context) ([]domain.PhoneNumber, error) {
	raw, err := inv.store.Get(ctx, repo.KeyPhoneNumbers)
	if errors.Is(err, repo.ErrNotFound) {
		return []domain.PhoneNumber{}, nil
	}
	if err != nil {
		return nil, err
	}
	var numbers []domain.PhoneNumber
	if err := json.Unmarshal([]byte(raw), &numbers); err != nil {
		return nil, fmt.Errorf("parse phone numbers: %w", err)
	}
	return DedupeNumbers(numbers), nil
}

// DedupeNumbers keeps the first record for each id.
func DedupeNumbers(numbers []domain.PhoneNumber) []domain.PhoneNumber {
	seen := make(map[string]bool, len(numbers))
	out := make([]domain.PhoneNumber, 0, len(numbers))
	for _, n := range numbers {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

func encodeNumbers(numbers []domain.PhoneNumber) (string, error) {
	data, err := json.Marshal(numbers)
	if err != nil {
		return "", fmt.Errorf("marshal phone numbers: %w", err)
	}
	return string(data), nil
}

// Catalog returns every purchasable entry, owned or not.
func (inv *Inventory) Catalog() []domain.CatalogEntry {
	return append([]domain.CatalogEntry{}, inv.catalog...)
}

// Available returns catalog entries whose number is not owned yet.
func (inv *Inventory) Available(ctx context.Context) []domain.CatalogEntry {
	owned := map[string]bool{}
	for _, n := range inv.ListOwned(ctx) {
		owned[n.Number] = true
	}
	var out []domain.CatalogEntry
	for _, entry := range inv.catalog {
		if !owned[entry.Number] {
			out = append(out, entry)
		}
	}
	return out
}

// Purchase charges for the requested catalog numbers and appends them to the
// inventory unassigned. Nothing is written when validation or payment fails.
func (inv *Inventory) Purchase(ctx context.Context, numbers []string) (PurchaseResult, error) {
	if len(numbers) == 0 {
		return PurchaseResult{}, ValidationError{Field: "numbers", Message: "at least one number is required"}
	}
	inv.numbersMu.Lock()
	defer inv.numbersMu.Unlock()

	owned, err := inv.load(ctx)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase failed: %w", err)
	}
	ownedSet := map[string]bool{}
	for _, n := range owned {
		ownedSet[n.Number] = true
	}
	byNumber := map[string]domain.CatalogEntry{}
	for _, entry := range inv.catalog {
		byNumber[entry.Number] = entry
	}
	var (
		entries []domain.CatalogEntry
		total   float64
		wanted  = map[string]bool{}
	)
	for _, raw := range numbers {
		num := strings.TrimSpace(raw)
		if wanted[num] {
			continue
		}
		entry, ok := byNumber[num]
		if !ok {
			return PurchaseResult{}, ValidationError{Field: "numbers", Message: fmt.Sprintf("number %s is not in the catalog", num)}
		}
		if ownedSet[num] {
			return PurchaseResult{}, ValidationError{Field: "numbers", Message: fmt.Sprintf("number %s is already owned", num)}
		}
		wanted[num] = true
		entries = append(entries, entry)
		total += entry.Price
	}
	total = math.Round(total*100) / 100

	receipt, err := inv.payments.Charge(ctx, Charge{
		Amount:      total,
		Description: fmt.Sprintf("%d phone number(s)", len(entries)),
		Numbers:     keysInOrder(entries),
	})
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("payment failed: %w", err)
	}

	now := inv.clock()
	bought := make([]domain.PhoneNumber, 0, len(entries))
	for _, entry := range entries {
		bought = append(bought, domain.PhoneNumber{
			ID:          newNumberID(now),
			Number:      entry.Number,
			Price:       entry.Price,
			PurchasedAt: now.UTC().Format(time.RFC3339),
		})
	}
	payload, err := encodeNumbers(DedupeNumbers(append(owned, bought...)))
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := inv.store.Set(ctx, repo.KeyPhoneNumbers, payload); err != nil {
		return PurchaseResult{}, fmt.Errorf("purchase failed: %w", err)
	}
	inv.record(ctx, "numbers.purchased", "phone_number", receipt.ID, events.EventPayload{
		"numbers": keysInOrder(entries),
		"amount":  receipt.Amount,
	})
	return PurchaseResult{Receipt: receipt, Numbers: bought}, nil
}

// Assign links agentID to the number numberID; see Reconciler.Assign.
func (inv *Inventory) Assign(ctx context.Context, numberID string, agentID domain.ID) (Assignment, error) {
	return inv.reconciler.Assign(ctx, numberID, agentID)
}

// newNumberID is the purchase timestamp plus a random suffix.
func newNumberID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

func keysInOrder(entries []domain.CatalogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Number
	}
	return out
}
