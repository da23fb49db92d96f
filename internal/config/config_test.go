package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	session := cfg.GetSession()
	assert.Equal(t, 5*time.Minute, session.ExpiryBuffer)
	assert.Equal(t, int64(3600), session.DefaultLifetime)
	assert.NotEqual(t, session.Key, session.LegacyKey)

	auth := cfg.GetAuth()
	assert.Contains(t, auth.MailScopeMarkers, "gmail.readonly")
	assert.Contains(t, auth.BasicScopeMarkers, "userinfo.email")
	assert.Equal(t, "http://localhost:3000/redirect", auth.RedirectURL)

	assert.Equal(t, "http", cfg.GetClassifier().Provider)
	assert.Equal(t, 1000, cfg.GetScan().MaxBodyChars)
	assert.Equal(t, int64(40), cfg.GetServer().GmailMaxResults)
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
classifier:
  provider: openai
  url: https://example.hf.space/predict
backend:
  url: http://backend.local:9000/
session:
  expiry_buffer: 90s
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.GetClassifier().Provider)
	assert.Equal(t, "http://backend.local:9000", cfg.GetBackend().URL)
	assert.Equal(t, 90*time.Second, cfg.GetSession().ExpiryBuffer)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	v := NewEmptyViper()
	v.Set("backend.timeout", "soon")
	cfg := NewFromViper(v)

	assert.Equal(t, 30*time.Second, cfg.GetBackend().Timeout)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x", "y"), expandPath("~/x/y"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
}
