package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfleet/internal/config"
	"callfleet/internal/events"
	"callfleet/internal/repo"
)

func TestOpenSeedsWorkspace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	nop := zerolog.Nop()

	rt, err := Open(ctx, dir, Options{Logger: &nop})
	require.NoError(t, err)
	assert.Len(t, rt.Engine.Agents.ListAgents(ctx), 3)
	_, err = rt.Repo.Get(ctx, repo.KeyAgents)
	require.NoError(t, err, "seed agents should be persisted")
	require.NoError(t, rt.Session.Login(ctx, "dana", ""))
	assert.Equal(t, "dana", events.ActorFrom(rt.ActorContext(ctx)))
	require.NoError(t, rt.Close())

	rt, err = Open(ctx, dir, Options{Logger: &nop})
	require.NoError(t, err)
	defer rt.Close()
	name, err := rt.Session.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dana", name)
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	yml := "catalog:\n  - number: \"+1 (555) 000-0001\"\n    country: US\n    type: local\n    price: 1.5\ncampaigns: []\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(yml), 0o644))

	nop := zerolog.Nop()
	rt, err := Open(ctx, dir, Options{Logger: &nop})
	require.NoError(t, err)
	defer rt.Close()
	avail := rt.Engine.Numbers.Available(ctx)
	require.Len(t, avail, 1)
	assert.Equal(t, "+1 (555) 000-0001", avail[0].Number)

	camps, err := rt.Campaigns.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Empty(t, camps)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("payments:\n  delay_ms: -1\n"), 0o644))
	_, err := Open(context.Background(), dir, Options{})
	assert.Error(t, err)
}

func TestStatusReportsWorkspace(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	nop := zerolog.Nop()

	rt, err := Open(ctx, dir, Options{Logger: &nop})
	require.NoError(t, err)
	defer rt.Close()

	st, err := rt.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".callfleet", "callfleet.db"), st.Database)
	assert.Equal(t, st.LatestSchema, st.SchemaVersion)
	assert.Equal(t, 2, st.LatestSchema)
	assert.Contains(t, st.Keys, repo.KeyAgents)
	assert.NotContains(t, st.Keys, repo.KeyPhoneNumbers)
}
