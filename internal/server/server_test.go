package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"callfleet/internal/config"
	"callfleet/internal/db"
	"callfleet/internal/domain"
	"callfleet/internal/engine"
	"callfleet/internal/events"
	"callfleet/internal/migrate"
	"callfleet/internal/repo"
	"callfleet/internal/session"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Token  string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	e := engine.New(r, events.Writer{DB: conn}, config.Default(), zerolog.Nop())
	e.Agents.Initialize(ctx)
	handler, err := New(Config{
		Engine:   e,
		Events:   r,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	token, err := session.MintToken(testSecret, "dana", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Token:  token,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func (s *testServer) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.Token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}

	bad, err := session.MintToken("other-secret", "dana", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", res.StatusCode)
	}
	if code := errorCode(t, body); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %s", code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(body, &me)
	if me.Subject != "dana" {
		t.Fatalf("expected subject dana, got %q", me.Subject)
	}
}

func TestAgentLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list agents %d: %s", res.StatusCode, string(body))
	}
	var list AgentListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("unmarshal agents: %v", err)
	}
	if len(list.Items) != 3 {
		t.Fatalf("expected 3 seeded agents, got %d", len(list.Items))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":    "Priya Nair",
		"role":    "Support",
		"country": map[string]any{"name": "India", "code": "IN"},
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create agent %d: %s", res.StatusCode, string(body))
	}
	var created domain.Agent
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal agent: %v", err)
	}
	if created.ID == "" || created.Status != domain.AgentActive {
		t.Fatalf("unexpected created agent: %+v", created)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents/"+string(created.ID), nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get agent %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents/does-not-exist", nil, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "not_found" {
		t.Fatalf("expected not_found, got %s", code)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":    " ",
		"country": map[string]any{"code": "IN"},
	}, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=agent.created", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, string(body))
	}
	var evts paginatedEvents
	_ = json.Unmarshal(body, &evts)
	if len(evts.Items) != 1 || evts.Items[0].ActorID != "dana" {
		t.Fatalf("expected one agent.created event by dana, got %+v", evts.Items)
	}
}

func TestPurchaseAndAssign(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/numbers/available", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("available %d: %s", res.StatusCode, string(body))
	}
	var avail CatalogResponse
	_ = json.Unmarshal(body, &avail)
	if len(avail.Items) != 6 {
		t.Fatalf("expected 6 catalog numbers, got %d", len(avail.Items))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/numbers/purchase", PurchaseRequest{
		Numbers: []string{avail.Items[0].Number, avail.Items[1].Number},
	}, srv.auth())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("purchase %d: %s", res.StatusCode, string(body))
	}
	var bought engine.PurchaseResult
	if err := json.Unmarshal(body, &bought); err != nil {
		t.Fatalf("unmarshal purchase: %v", err)
	}
	if len(bought.Numbers) != 2 {
		t.Fatalf("expected 2 numbers, got %d", len(bought.Numbers))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/numbers/purchase", PurchaseRequest{
		Numbers: []string{avail.Items[0].Number},
	}, srv.auth())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for owned number, got %d %s", res.StatusCode, string(body))
	}

	first, second := bought.Numbers[0], bought.Numbers[1]
	for _, n := range []domain.PhoneNumber{first, second} {
		res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/numbers/"+n.ID+"/assign", AssignRequest{AgentID: "1"}, srv.auth())
		if res.StatusCode != http.StatusOK {
			t.Fatalf("assign %s: %d %s", n.ID, res.StatusCode, string(body))
		}
	}
	var last engine.Assignment
	_ = json.Unmarshal(body, &last)
	if !last.Applied || len(last.Revoked) != 1 || last.Revoked[0] != first.ID {
		t.Fatalf("unexpected assignment: %+v", last)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents/1", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get agent %d: %s", res.StatusCode, string(body))
	}
	var agent domain.Agent
	_ = json.Unmarshal(body, &agent)
	if len(agent.AssignedPhoneNumbers) != 1 || agent.AssignedPhoneNumbers[0] != second.Number {
		t.Fatalf("expected agent 1 to hold %s, got %v", second.Number, agent.AssignedPhoneNumbers)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/numbers/"+first.ID+"/assign", AssignRequest{AgentID: "404"}, srv.auth())
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/numbers?unassigned=true", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list numbers %d: %s", res.StatusCode, string(body))
	}
	var free NumberListResponse
	_ = json.Unmarshal(body, &free)
	if len(free.Items) != 1 || free.Items[0].ID != first.ID {
		t.Fatalf("expected %s unassigned, got %+v", first.ID, free.Items)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/numbers/reconcile", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reconcile %d: %s", res.StatusCode, string(body))
	}
}

func TestDashboard(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/dashboard", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard %d: %s", res.StatusCode, string(body))
	}
	var dash DashboardResponse
	if err := json.Unmarshal(body, &dash); err != nil {
		t.Fatalf("unmarshal dashboard: %v", err)
	}
	if dash.Summary.TotalAgents != 3 || dash.Summary.ActiveAgents != 2 {
		t.Fatalf("unexpected agent counts: %+v", dash.Summary)
	}
	if dash.Summary.TotalCalls != 2260 || dash.Summary.AvailableCredits != 920 {
		t.Fatalf("unexpected totals: %+v", dash.Summary)
	}
	// low credit, two active campaigns, one top performer
	if dash.Notifications != 4 {
		t.Fatalf("expected 4 notifications, got %d", dash.Notifications)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications %d: %s", res.StatusCode, string(body))
	}
	var notes NotificationsResponse
	_ = json.Unmarshal(body, &notes)
	if notes.Count != dash.Notifications || len(notes.Items) != notes.Count {
		t.Fatalf("notification list disagrees with count: %+v", notes)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/charts/calls?days=7", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chart %d: %s", res.StatusCode, string(body))
	}
	var chart ChartResponse
	_ = json.Unmarshal(body, &chart)
	if len(chart.Points) != 7 {
		t.Fatalf("expected 7 points, got %d", len(chart.Points))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/campaigns", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("campaigns %d: %s", res.StatusCode, string(body))
	}
	var camps CampaignListResponse
	_ = json.Unmarshal(body, &camps)
	if len(camps.Items) != 3 {
		t.Fatalf("expected 3 configured campaigns, got %d", len(camps.Items))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, srv.auth())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi %d: %s", res.StatusCode, string(body))
	}
}
