package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callfleet/internal/domain"
)

func TestSetEnvValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KEEP=1\nCALLFLEET_JWT_SECRET=old\n"), 0o644))

	require.NoError(t, setEnvValue(path, "CALLFLEET_JWT_SECRET", "new"))
	require.NoError(t, setEnvValue(path, "CALLFLEET_LOG_LEVEL", "debug"))

	vals, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"KEEP":                 "1",
		"CALLFLEET_JWT_SECRET": "new",
		"CALLFLEET_LOG_LEVEL":  "debug",
	}, vals)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234.5 USD", money(1234.5, ""))
	assert.Equal(t, "🇬🇧 United Kingdom", countryLabel(domain.Country{Name: "United Kingdom", Flag: "🇬🇧", Code: "GB"}))
	assert.Equal(t, "DE", countryLabel(domain.Country{Code: "DE"}))
	assert.Equal(t, "not-a-date", purchasedAgo("not-a-date"))
	assert.Contains(t, purchasedAgo(time.Now().Add(-3*time.Hour).Format(time.RFC3339)), "hours ago")
}
