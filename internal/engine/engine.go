package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callfleet/internal/config"
	"callfleet/internal/domain"
	"callfleet/internal/events"
	"callfleet/internal/repo"
)

// Engine wires the agent registry, the number inventory and the reconciler
// over one Store.
type Engine struct {
	Store      repo.Store
	Agents     *Registry
	Numbers    *Inventory
	Reconciler *Reconciler
	Config     *config.Config

	deps *deps
}

// deps is shared by the components of one Engine.
type deps struct {
	store  repo.Store
	events events.Recorder
	log    zerolog.Logger
	now    func() time.Time

	// numbersMu serializes read-modify-write cycles on the number inventory.
	numbersMu sync.Mutex
}

func (d *deps) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *deps) record(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) {
	if err := events.Record(ctx, d.events, evtType, entityKind, entityID, payload); err != nil {
		d.log.Warn().Err(err).Str("event", evtType).Msg("append event failed")
	}
}

// New builds an Engine. rec may be nil when no audit log is kept.
func New(store repo.Store, rec events.Recorder, cfg *config.Config, logger zerolog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &deps{store: store, events: rec, log: logger, now: time.Now}
	reg := &Registry{deps: d}
	rc := &Reconciler{deps: d, registry: reg}
	inv := &Inventory{
		deps:       d,
		catalog:    append([]domain.CatalogEntry{}, cfg.Catalog...),
		reconciler: rc,
		payments: SimulatedPayments{
			Delay:    cfg.PaymentDelay(),
			Currency: cfg.Payments.Currency,
			Now:      d.clock,
		},
	}
	return &Engine{
		Store:      store,
		Agents:     reg,
		Numbers:    inv,
		Reconciler: rc,
		Config:     cfg,
		deps:       d,
	}
}

// SetNow replaces the clock used for ids, dates and events.
func (e *Engine) SetNow(now func() time.Time) {
	e.deps.now = now
}

// SetPayments replaces the payment processor used by purchases.
func (e *Engine) SetPayments(p PaymentProcessor) {
	e.Numbers.payments = p
}

// ValidationError reports a rejected input before any state changed.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateDraft checks the fields an agent needs before creation.
func ValidateDraft(d AgentDraft) error {
	if strings.TrimSpace(d.Name) == "" {
		return ValidationError{Field: "name", Message: "agent name is required"}
	}
	if strings.TrimSpace(d.Country.Name) == "" && strings.TrimSpace(d.Country.Code) == "" {
		return ValidationError{Field: "country", Message: "destination country is required"}
	}
	return nil
}
