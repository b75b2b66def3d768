package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// ClientConfig configures the CLI and the web companion.
type ClientConfig struct {
	APIURL          string
	SessionFile     string
	RedisURL        string
	RefreshInterval time.Duration
	HTTPTimeout     time.Duration
	WebPort         string
	// WebAddr is where the web companion listens. It defaults to loopback
	// because the companion serves a single signed-in browser.
	WebAddr string
	// RabbitMQURL lets the web companion relay backend auth events.
	RabbitMQURL string
}

// LoadClient reads TALK2ME_* settings, after loading .env if present.
func LoadClient() (*ClientConfig, error) {
	loadDotEnv()

	cfg := &ClientConfig{
		APIURL:      getEnv("TALK2ME_API_URL", "http://127.0.0.1:8099/talk2me/api/v1"),
		SessionFile: getEnv("TALK2ME_SESSION_FILE", defaultSessionFile()),
		RedisURL:    getEnv("TALK2ME_REDIS_URL", ""),
		WebPort:     getEnv("TALK2ME_WEB_PORT", "8900"),
		RabbitMQURL: getEnv("TALK2ME_RABBITMQ_URL", ""),
	}
	cfg.WebAddr = getEnv("TALK2ME_WEB_ADDR", net.JoinHostPort("127.0.0.1", cfg.WebPort))

	var err error
	if cfg.RefreshInterval, err = getDuration("TALK2ME_REFRESH_INTERVAL", 25*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("TALK2ME_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("TALK2ME_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("TALK2ME_REFRESH_INTERVAL must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("TALK2ME_HTTP_TIMEOUT must be positive")
	}
	if c.WebAddr != "" {
		if _, _, err := net.SplitHostPort(c.WebAddr); err != nil {
			return fmt.Errorf("TALK2ME_WEB_ADDR must be host:port, got %q", c.WebAddr)
		}
	}
	return nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".talk2me-session.json"
	}
	return filepath.Join(dir, "talk2me", "session.json")
}
