package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/sbus/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                      `yaml:"bind"`
	Auth            AuthConfig                  `yaml:"auth"`
	Webhooks        map[string]WebhookSourceCfg `yaml:"webhooks"`
	RateLimit       *security.RateLimitConfig   `yaml:"rate_limit"`
	ReadTimeout     time.Duration               `yaml:"read_timeout"`
	WriteTimeout    time.Duration               `yaml:"write_timeout"`
	ShutdownTimeout time.Duration               `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies on ingest endpoints.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// EventSource is the CloudEvents source of messages served as events
	// when the message carries none.
	EventSource string `yaml:"event_source"`

	// StreamPollInterval is how often a websocket consumer re-checks a
	// group that is not backed by a registered channel.
	StreamPollInterval time.Duration `yaml:"stream_poll_interval"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.EventSource == "" {
		c.EventSource = "/sbus"
	}
	if c.StreamPollInterval <= 0 {
		c.StreamPollInterval = 250 * time.Millisecond
	}
	if c.RateLimit == nil {
		rl := security.DefaultRateLimits()
		c.RateLimit = &rl
	}
}

func (c *Config) validate() error {
	var errs []error
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: auth.basic_user and auth.basic_pass must be set together"))
	}
	for source, wh := range c.Webhooks {
		if (wh.Router == "") == (wh.Group == "") {
			errs = append(errs, fmt.Errorf("gateway: webhook %q: exactly one of router or group is required", source))
		}
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for admin endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// WebhookSourceCfg holds per-source webhook configuration. Each source
// delivers into either a router or a store group.
type WebhookSourceCfg struct {
	Secret string `yaml:"secret"`
	Router string `yaml:"router"`
	Group  string `yaml:"group"`
}
