package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Recorder appends audit events. A nil Recorder is valid for callers that
// check with Record.
type Recorder interface {
	Append(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error
}

type EventPayload map[string]any

type actorKey struct{}

const defaultActor = "local-user"

// WithActor tags ctx with the actor recorded on events.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor on ctx, or local-user.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok && v != "" {
		return v
	}
	return defaultActor
}

// Record appends through rec when it is set.
func Record(ctx context.Context, rec Recorder, evtType, entityKind, entityID string, payload EventPayload) error {
	if rec == nil {
		return nil
	}
	return rec.Append(ctx, evtType, entityKind, entityID, payload)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), ActorFrom(ctx), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
