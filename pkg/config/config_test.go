package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://www.grabtexts.shop/api/chat/incoming/", cfg.ChatURL())
	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr())
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 3, cfg.SendRetries)
	assert.NotEmpty(t, cfg.EmptyReplyFallback)
	assert.NotEmpty(t, cfg.BusyFallback)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DJANGO_BASE_URL", "http://localhost:8000/")
	t.Setenv("DJANGO_CHAT_PATH", "/chat/")
	t.Setenv("DJANGO_AUTH_TOKEN", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("BACKEND_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/chat/", cfg.ChatURL())
	assert.Equal(t, "secret", cfg.BackendAuthToken)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout)
}

func TestChatURLTrailingSlash(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
	}{
		{"https://example.com", "/api/chat/incoming/", "https://example.com/api/chat/incoming/"},
		{"https://example.com/", "/api/chat/incoming/", "https://example.com/api/chat/incoming/"},
		{"https://example.com//", "/chat", "https://example.com/chat"},
	}

	for _, tt := range tests {
		cfg := &Config{BackendBaseURL: tt.base, BackendChatPath: tt.path}
		assert.Equal(t, tt.want, cfg.ChatURL())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("QUEUE_DEPTH", "0")

	_, err := Load()
	assert.Error(t, err)
}
