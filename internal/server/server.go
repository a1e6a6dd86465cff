package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"callfleet/internal/campaign"
	"callfleet/internal/domain"
	"callfleet/internal/engine"
	"callfleet/internal/repo"
	"callfleet/internal/stats"
)

// EventLog is the read side of the audit log. repo.Repo implements it.
type EventLog interface {
	LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error)
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Config for the HTTP API handler.
type Config struct {
	Engine    *engine.Engine
	Events    EventLog
	Campaigns campaign.Source
	BasePath  string
	Auth      AuthConfig
	// AllowedOrigins enables CORS for browser dashboards. Empty disables it.
	AllowedOrigins []string
	Logger         zerolog.Logger
	Now            func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"agent 42: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the callfleet API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Campaigns == nil {
		cfg.Campaigns = campaign.Static(cfg.Engine.Config.Campaigns)
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(corsMiddleware(cfg.AllowedOrigins))
	}
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Callfleet API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAgents(group, cfg.Engine)
	registerNumbers(group, cfg.Engine)
	registerDashboard(group, cfg)
	registerCampaigns(group, cfg.Campaigns)
	registerEvents(group, cfg.Events)
	registerMe(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "canceled", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Callfleet API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; (see cf login --mint).
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAgents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,pending,inactive"`
	}) (*struct {
		Body AgentListResponse `json:"body"`
	}, error) {
		items := []domain.Agent{}
		for _, a := range e.Agents.ListAgents(ctx) {
			if input.Status != "" && string(a.Status) != input.Status {
				continue
			}
			items = append(items, a)
		}
		return &struct {
			Body AgentListResponse `json:"body"`
		}{Body: AgentListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Create agent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateAgentRequest `json:"body"`
	}) (*struct {
		Body domain.Agent `json:"body"`
	}, error) {
		draft := input.Body.draft()
		if err := engine.ValidateDraft(draft); err != nil {
			return nil, handleError(err)
		}
		agent, err := e.Agents.AddAgent(ctx, draft)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agent `json:"body"`
		}{Body: agent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}",
		Summary:     "Get agent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AgentID string `path:"agent_id"`
	}) (*struct {
		Body domain.Agent `json:"body"`
	}, error) {
		agent, err := e.Agents.GetAgent(ctx, domain.ID(input.AgentID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agent `json:"body"`
		}{Body: agent}, nil
	})
}

func registerNumbers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-numbers",
		Method:      http.MethodGet,
		Path:        "/numbers",
		Summary:     "List owned phone numbers",
	}, func(ctx context.Context, input *struct {
		Unassigned bool `query:"unassigned"`
	}) (*struct {
		Body NumberListResponse `json:"body"`
	}, error) {
		items := []domain.PhoneNumber{}
		for _, n := range e.Numbers.ListOwned(ctx) {
			if input.Unassigned && n.AgentID != nil {
				continue
			}
			items = append(items, n)
		}
		return &struct {
			Body NumberListResponse `json:"body"`
		}{Body: NumberListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-available-numbers",
		Method:      http.MethodGet,
		Path:        "/numbers/available",
		Summary:     "List catalog numbers not yet owned",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: CatalogResponse{Items: nonNilSlice(e.Numbers.Available(ctx))}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "purchase-numbers",
		Method:        http.MethodPost,
		Path:          "/numbers/purchase",
		Summary:       "Purchase catalog numbers",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body PurchaseRequest `json:"body"`
	}) (*struct {
		Body engine.PurchaseResult `json:"body"`
	}, error) {
		res, err := e.Numbers.Purchase(ctx, input.Body.Numbers)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.PurchaseResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-number",
		Method:      http.MethodPost,
		Path:        "/numbers/{number_id}/assign",
		Summary:     "Assign a number to an agent",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		NumberID string        `path:"number_id"`
		Body     AssignRequest `json:"body"`
	}) (*struct {
		Body engine.Assignment `json:"body"`
	}, error) {
		res, err := e.Numbers.Assign(ctx, input.NumberID, domain.ID(input.Body.AgentID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Assignment `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-numbers",
		Method:      http.MethodPost,
		Path:        "/numbers/reconcile",
		Summary:     "Rebuild agent number links from the inventory",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AgentListResponse `json:"body"`
	}, error) {
		agents, err := e.Reconciler.Reconcile(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentListResponse `json:"body"`
		}{Body: AgentListResponse{Items: nonNilSlice(agents)}}, nil
	})
}

func registerDashboard(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Fleet summary",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		agents := e.Agents.ListAgents(ctx)
		camps, err := cfg.Campaigns.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: DashboardResponse{
			Summary:       stats.Summarize(agents),
			Notifications: stats.NotificationCount(agents, camps),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Current alerts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body NotificationsResponse `json:"body"`
	}, error) {
		agents := e.Agents.ListAgents(ctx)
		camps, err := cfg.Campaigns.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items := stats.Notifications(agents, camps)
		return &struct {
			Body NotificationsResponse `json:"body"`
		}{Body: NotificationsResponse{Count: len(items), Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "call-chart",
		Method:      http.MethodGet,
		Path:        "/charts/calls",
		Summary:     "Daily call volume chart",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" default:"30" minimum:"1" maximum:"365"`
	}) (*struct {
		Body ChartResponse `json:"body"`
	}, error) {
		now := cfg.now()
		rng := rand.New(rand.NewSource(now.UnixNano()))
		points := stats.CallSeries(e.Agents.ListAgents(ctx), now, rng, input.Days)
		return &struct {
			Body ChartResponse `json:"body"`
		}{Body: ChartResponse{Points: points}}, nil
	})
}

func registerCampaigns(api huma.API, src campaign.Source) {
	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CampaignListResponse `json:"body"`
	}, error) {
		items, err := src.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CampaignListResponse `json:"body"`
		}{Body: CampaignListResponse{Items: nonNilSlice(items)}}, nil
	})
}

func registerEvents(api huma.API, log EventLog) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"agent,phone_number,session"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		resp := paginatedEvents{Items: []domain.Event{}}
		if log == nil {
			return &struct {
				Body paginatedEvents `json:"body"`
			}{Body: resp}, nil
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := log.LatestEventsFrom(ctx, limit+1, cursorID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{Subject: principal.Subject, Source: principal.Source}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
