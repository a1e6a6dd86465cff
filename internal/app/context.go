package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"callfleet/internal/campaign"
	"callfleet/internal/config"
	"callfleet/internal/db"
	"callfleet/internal/engine"
	"callfleet/internal/events"
	"callfleet/internal/logging"
	"callfleet/internal/migrate"
	"callfleet/internal/repo"
	"callfleet/internal/session"
)

// Runtime bundles everything a command needs for one workspace.
type Runtime struct {
	Engine    *engine.Engine
	Repo      repo.Repo
	Config    *config.Config
	Campaigns campaign.StoreSource
	Session   session.Session
	Log       zerolog.Logger

	workspace string
	conn      *sql.DB
}

// Options tune Open. Zero values use the workspace config and stderr.
type Options struct {
	LogLevel string
	Logger   *zerolog.Logger
}

// Open loads callfleet.yml (or the defaults), opens and migrates the
// workspace database and loads the agent registry.
func Open(ctx context.Context, workspace string, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		level := opts.LogLevel
		if level == "" {
			level = cfg.LogLevel
		}
		logger = logging.New(level, os.Stderr)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.Repo{DB: conn}
	w := events.Writer{DB: conn}
	rt := &Runtime{
		Engine:    engine.New(r, w, cfg, logger),
		Repo:      r,
		Config:    cfg,
		Campaigns: campaign.StoreSource{Store: r, Fallback: campaign.Static(cfg.Campaigns), Log: logger},
		Session:   session.Session{Store: r, LogoutURL: cfg.Auth.LogoutURL, Log: logger, Events: w},
		Log:       logger,
		workspace: workspace,
		conn:      conn,
	}
	rt.Engine.Agents.Initialize(ctx)
	return rt, nil
}

// ActorContext attributes events to the signed-in user, if any.
func (rt *Runtime) ActorContext(ctx context.Context) context.Context {
	if user, err := rt.Session.UserName(ctx); err == nil && user != "" {
		return events.WithActor(ctx, user)
	}
	return ctx
}

// Status describes the workspace database.
type Status struct {
	Database      string            `json:"database"`
	SchemaVersion int               `json:"schema_version"`
	LatestSchema  int               `json:"latest_schema"`
	Keys          map[string]string `json:"keys"`
}

// Status reports where state lives, the schema version and when each stored
// key was last written.
func (rt *Runtime) Status(ctx context.Context) (Status, error) {
	current, err := migrate.Version(ctx, rt.conn)
	if err != nil {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		return Status{}, err
	}
	keys, err := rt.Repo.Keys(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("list keys: %w", err)
	}
	return Status{
		Database:      db.Path(rt.workspace),
		SchemaVersion: current,
		LatestSchema:  latest,
		Keys:          keys,
	}, nil
}

func (rt *Runtime) Close() error {
	return rt.conn.Close()
}
