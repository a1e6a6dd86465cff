package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"callfleet/internal/domain"
	"callfleet/internal/repo"
)

// Source lists campaigns. Campaign data is owned elsewhere; callfleet only reads it.
type Source interface {
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// Static serves a fixed list.
type Static []domain.Campaign

func (s Static) ListCampaigns(context.Context) ([]domain.Campaign, error) {
	return append([]domain.Campaign{}, s...), nil
}

// StoreSource reads campaigns from repo.KeyCampaigns and falls back to
// Fallback when the key is absent or unreadable.
type StoreSource struct {
	Store    repo.Store
	Fallback Static
	Log      zerolog.Logger
}

func (s StoreSource) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	raw, err := s.Store.Get(ctx, repo.KeyCampaigns)
	if errors.Is(err, repo.ErrNotFound) {
		return s.Fallback.ListCampaigns(ctx)
	}
	if err != nil {
		s.Log.Warn().Err(err).Msg("read campaigns failed, using configured campaigns")
		return s.Fallback.ListCampaigns(ctx)
	}
	var out []domain.Campaign
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.Log.Warn().Err(err).Msg("parse campaigns failed, using configured campaigns")
		return s.Fallback.ListCampaigns(ctx)
	}
	return out, nil
}

// Import replaces the stored campaign list.
func (s StoreSource) Import(ctx context.Context, campaigns []domain.Campaign) error {
	for i, c := range campaigns {
		if c.ID == "" {
			return fmt.Errorf("campaign %d: id is required", i)
		}
		if c.Progress < 0 || c.Progress > 100 {
			return fmt.Errorf("campaign %s: progress must be within 0-100", c.ID)
		}
	}
	data, err := json.Marshal(campaigns)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, repo.KeyCampaigns, string(data))
}

// ReadFile parses a YAML (or JSON) list of campaigns.
func ReadFile(path string) ([]domain.Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []domain.Campaign
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid campaigns file: %w", err)
	}
	return out, nil
}
