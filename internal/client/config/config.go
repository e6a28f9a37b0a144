package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the MedTrace client.
type Config struct {
	BackendURL      string `env:"BACKEND_URL"`
	AnonKey         string `env:"ANON_KEY"`
	HealthCheckAddr string `env:"HEALTH_GRPC_ADDR"`

	DatabasePath string `env:"DB_PATH"`
	KeyFilePath  string `env:"KEY_FILE"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT"`

	// App lock timings. LockDebounce absorbs lifecycle flaps, UnlockRetryDelay
	// spaces automatic re-prompts after a failed unlock.
	LockDebounce     time.Duration `env:"LOCK_DEBOUNCE"`
	UnlockRetryDelay time.Duration `env:"UNLOCK_RETRY_DELAY"`

	LogLevel string `env:"LOG_LEVEL"`
}

// LoadDefaults populates c with defaults suitable for a local backend.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:54321"
	c.DatabasePath = "medtrace.db"
	c.KeyFilePath = "medtrace.key"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 12 * time.Second
	c.LockDebounce = 100 * time.Millisecond
	c.UnlockRetryDelay = time.Second
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, environment, JSON and flags, in
// that order. It panics on malformed input, as a misconfigured client cannot
// start.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	args := os.Args[1:]
	if err := parseEnv(cfg, ".env"); err != nil {
		panic(err)
	}
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
