package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"callfleet/internal/config"
	"callfleet/internal/domain"
)

type fakeEventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeEventLog) add(evtType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, domain.Event{
		ID:         int64(len(f.events) + 1),
		Type:       evtType,
		EntityKind: "agent",
		ActorID:    "tester",
		Payload:    `{"ok":true}`,
	})
}

func (f *fakeEventLog) LatestEventsFrom(_ context.Context, limit int, _ int64, _, _, _ string) ([]domain.Event, error) {
	return nil, nil
}

func (f *fakeEventLog) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.events {
		if e.ID > cursor && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventLog) LatestEventID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.events)), nil
}

func TestWebhookDeliversNewEvents(t *testing.T) {
	type delivery struct {
		event, id string
		body      webhookEvent
	}
	var (
		mu  sync.Mutex
		got []delivery
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, delivery{event: r.Header.Get("X-Callfleet-Event"), id: r.Header.Get("X-Callfleet-Delivery"), body: body})
		mu.Unlock()
	}))
	defer hook.Close()

	log := &fakeEventLog{}
	log.add("agent.created")
	d := &webhookDispatcher{
		events:   log,
		webhooks: []config.WebhookConfig{{URL: hook.URL, Events: []string{"number.assigned"}}},
		client:   hook.Client(),
		log:      zerolog.Nop(),
		cursors:  map[int]int64{},
	}
	ctx := context.Background()
	d.dispatchAll(ctx)

	log.add("agent.created")
	log.add("number.assigned")
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(got))
	}
	if got[0].event != "number.assigned" || got[0].id != "3" {
		t.Fatalf("unexpected delivery headers: %+v", got[0])
	}
	if string(got[0].body.Payload) != `{"ok":true}` {
		t.Fatalf("unexpected payload: %s", string(got[0].body.Payload))
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer hook.Close()

	log := &fakeEventLog{}
	d := &webhookDispatcher{
		events:   log,
		webhooks: []config.WebhookConfig{{URL: hook.URL}},
		client:   hook.Client(),
		log:      zerolog.Nop(),
		cursors:  map[int]int64{},
	}
	ctx := context.Background()
	d.dispatchAll(ctx)
	log.add("agent.created")
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected a failed attempt then one success, got %d calls", calls)
	}
}

func TestStartWebhooksStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	disabled := false
	ctx, cancel := context.WithCancel(context.Background())
	done := StartWebhooks(ctx, &fakeEventLog{}, []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &disabled}}, zerolog.Nop())
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	idle := StartWebhooks(context.Background(), nil, nil, zerolog.Nop())
	<-idle
}
