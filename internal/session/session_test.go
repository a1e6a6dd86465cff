package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfleet/internal/events"
	"callfleet/internal/repo"
)

func TestLoginAndLogout(t *testing.T) {
	ctx := context.Background()
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := repo.NewMemoryStore()
	s := Session{Store: store, LogoutURL: srv.URL, Log: zerolog.Nop()}

	name, err := s.UserName(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, s.Login(ctx, "Dana", "tok-1"))
	name, err = s.UserName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dana", name)

	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, "Bearer tok-1", <-gotAuth)
	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	name, _ = s.UserName(ctx)
	assert.Equal(t, "Dana", name)
}

func TestLogoutClearsTokenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	srv.Close()

	store := repo.NewMemoryStore()
	require.NoError(t, store.Set(ctx, repo.KeyAuthToken, "raw-token"))
	s := Session{Store: store, LogoutURL: srv.URL, Log: zerolog.Nop()}

	require.NoError(t, s.Logout(ctx))
	_, err := store.Get(ctx, repo.KeyAuthToken)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestLogoutReportsLocalFailure(t *testing.T) {
	store := repo.NewMemoryStore()
	store.WriteErr = assert.AnError
	s := Session{Store: store, Log: zerolog.Nop()}
	assert.ErrorIs(t, s.Logout(context.Background()), assert.AnError)
}

func TestMintAndParseToken(t *testing.T) {
	now := time.Now()
	tok, err := MintToken("secret", "dana", time.Hour, now)
	require.NoError(t, err)

	sub, err := ParseToken(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "dana", sub)

	_, err = ParseToken(tok, "other")
	assert.Error(t, err)

	expired, err := MintToken("secret", "dana", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseToken(expired, "secret")
	assert.Error(t, err)

	_, err = MintToken("", "dana", time.Hour, now)
	assert.Error(t, err)
}

type recorded struct{ typ, actor, id string }

type fakeRecorder struct{ items []recorded }

func (f *fakeRecorder) Append(ctx context.Context, evtType, _, entityID string, _ events.EventPayload) error {
	f.items = append(f.items, recorded{typ: evtType, actor: events.ActorFrom(ctx), id: entityID})
	return nil
}

func TestSessionEvents(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	s := Session{Store: repo.NewMemoryStore(), Log: zerolog.Nop(), Events: rec}

	require.NoError(t, s.Login(ctx, "Dana", "tok"))
	require.NoError(t, s.Logout(ctx))
	assert.Equal(t, []recorded{
		{typ: "session.login", actor: "Dana", id: "Dana"},
		{typ: "session.logout", actor: "local-user", id: "Dana"},
	}, rec.items)
}
