package campaign

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfleet/internal/domain"
	"callfleet/internal/repo"
)

func TestStoreSourceFallsBack(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	src := StoreSource{Store: store, Fallback: Static{{ID: "cfg", Status: "active"}}, Log: zerolog.Nop()}

	got, err := src.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Campaign{{ID: "cfg", Status: "active"}}, got)

	require.NoError(t, store.Set(ctx, repo.KeyCampaigns, "nope"))
	got, err = src.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cfg", got[0].ID)
}

func TestImportFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "campaigns.yml")
	require.NoError(t, os.WriteFile(path, []byte("- id: q1\n  name: Q1 Push\n  status: active\n  progress: 20\n"), 0o644))

	items, err := ReadFile(path)
	require.NoError(t, err)
	src := StoreSource{Store: repo.NewMemoryStore(), Log: zerolog.Nop()}
	require.NoError(t, src.Import(ctx, items))

	got, err := src.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Q1 Push", got[0].Name)
	assert.True(t, got[0].Active())

	assert.Error(t, src.Import(ctx, []domain.Campaign{{ID: "x", Progress: 101}}))
	assert.Error(t, src.Import(ctx, []domain.Campaign{{Name: "no id"}}))
}
