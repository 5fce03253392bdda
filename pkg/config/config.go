package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the adapter. It is built once at startup
// from the environment and never mutated afterwards.
type Config struct {
	// Backend (the application that produces replies).
	BackendBaseURL   string        `env:"DJANGO_BASE_URL" envDefault:"https://www.grabtexts.shop"`
	BackendChatPath  string        `env:"DJANGO_CHAT_PATH" envDefault:"/api/chat/incoming/"`
	BackendAuthToken string        `env:"DJANGO_AUTH_TOKEN"`
	BackendTimeout   time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`

	// Control-plane HTTP surface.
	ListenHost string `env:"HOST" envDefault:"0.0.0.0"`
	ListenPort int    `env:"PORT" envDefault:"3000"`

	// WhatsApp bridge transport.
	BridgeURL     string `env:"WA_BRIDGE_URL" envDefault:"ws://127.0.0.1:8055/ws"`
	AuthStorePath string `env:"WWEBJS_AUTH_PATH" envDefault:".wwebjs_auth"`
	ClientID      string `env:"WA_CLIENT_ID" envDefault:"render-wa"`

	// Outbound queue.
	SendRetries int           `env:"SEND_RETRIES" envDefault:"3"`
	SendBackoff time.Duration `env:"SEND_BACKOFF" envDefault:"2s"`
	QueueDepth  int           `env:"QUEUE_DEPTH" envDefault:"32"`
	DedupWindow int           `env:"DEDUP_WINDOW" envDefault:"500"`

	// Fallback replies. The end user always gets some reply to a forwarded
	// message, these are what they get when the backend cannot answer.
	EmptyReplyFallback string `env:"EMPTY_REPLY_FALLBACK" envDefault:"Sorry - I couldn't process that. Please try again."`
	BusyFallback       string `env:"BUSY_FALLBACK" envDefault:"System is busy. Please try again."`

	// SupportContactURL goes into the payment-confirmation template.
	SupportContactURL string `env:"SUPPORT_CONTACT_URL" envDefault:"https://wa.me/+233559665774"`

	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.ListenPort)
	}
	if cfg.QueueDepth < 1 {
		return nil, fmt.Errorf("QUEUE_DEPTH must be at least 1, got %d", cfg.QueueDepth)
	}
	if cfg.DedupWindow < 1 {
		return nil, fmt.Errorf("DEDUP_WINDOW must be at least 1, got %d", cfg.DedupWindow)
	}
	if cfg.SendRetries < 0 {
		return nil, fmt.Errorf("SEND_RETRIES must not be negative, got %d", cfg.SendRetries)
	}
	return cfg, nil
}

// ChatURL joins the backend base URL and chat path, normalizing the
// trailing slash on the base so the path is never doubled.
func (c *Config) ChatURL() string {
	return strings.TrimRight(c.BackendBaseURL, "/") + c.BackendChatPath
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
