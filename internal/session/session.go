package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"callfleet/internal/events"
	"callfleet/internal/repo"
)

const logoutTimeout = 10 * time.Second

// Session keeps the signed-in user and token in the local store.
type Session struct {
	Store     repo.Store
	LogoutURL string
	Client    *http.Client
	Log       zerolog.Logger
	Events    events.Recorder
}

func (s Session) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: logoutTimeout}
}

// UserName returns the stored user name, or "" when nobody is signed in.
func (s Session) UserName(ctx context.Context) (string, error) {
	raw, err := s.Store.Get(ctx, repo.KeyLoggedInUser)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decodeString(raw), nil
}

// Token returns the stored auth token, or "".
func (s Session) Token(ctx context.Context) (string, error) {
	raw, err := s.Store.Get(ctx, repo.KeyAuthToken)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return decodeString(raw), nil
}

func (s Session) Login(ctx context.Context, name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("user name is required")
	}
	entries := map[string]string{repo.KeyLoggedInUser: name}
	if token != "" {
		entries[repo.KeyAuthToken] = token
	}
	if err := s.Store.SetMany(ctx, entries); err != nil {
		return err
	}
	s.record(events.WithActor(ctx, name), "session.login", name)
	return nil
}

// Logout notifies the remote session endpoint when one is configured and
// then clears the local token. Remote failures are logged only.
func (s Session) Logout(ctx context.Context) error {
	token, err := s.Token(ctx)
	if err != nil {
		s.Log.Warn().Err(err).Msg("read auth token failed")
	}
	if s.LogoutURL != "" && token != "" {
		if err := s.notifyLogout(ctx, token); err != nil {
			s.Log.Warn().Err(err).Str("url", s.LogoutURL).Msg("remote logout failed")
		}
	}
	if err := s.Store.Delete(ctx, repo.KeyAuthToken); err != nil {
		return fmt.Errorf("clear auth token: %w", err)
	}
	user, _ := s.UserName(ctx)
	s.record(ctx, "session.logout", user)
	return nil
}

func (s Session) record(ctx context.Context, evtType, user string) {
	if err := events.Record(ctx, s.Events, evtType, "session", user, nil); err != nil {
		s.Log.Warn().Err(err).Str("event", evtType).Msg("append event failed")
	}
}

func (s Session) notifyLogout(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.LogoutURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("logout returned %s", resp.Status)
	}
	return nil
}

// Values are plain strings; JSON-quoted ones are accepted too.
func decodeString(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

// Claims are the JWT claims accepted by the API.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// MintToken issues an HS256 token for subject valid for ttl.
func MintToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "callfleet",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: subject,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates token and returns its subject.
func ParseToken(token, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}
