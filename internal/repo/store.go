package repo

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Keys of the persisted snapshots. Values are JSON except the session keys,
// which hold plain strings.
const (
	KeyAgents       = "AGENTS_WITH_PHONES"
	KeyPhoneNumbers = "PHONE_NUMBERS_DATA"
	KeyCampaigns    = "CAMPAIGNS_DATA"
	KeyLoggedInUser = "loggedInUser"
	KeyAuthToken    = "authToken"
)

// Store is a string key-value store. Get returns ErrNotFound for missing
// keys. SetMany writes every pair or none.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, key string) error
}
