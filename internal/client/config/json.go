package config

import (
	"encoding/json"
	"os"

	"github.com/santinotanus/medtrace/internal/flagx"
	"github.com/santinotanus/medtrace/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Zero values mean
// "not set" and leave the current Config value untouched.
type JsonConfig struct {
	BackendURL          string         `json:"backend_url"`
	AnonKey             string         `json:"anon_key"`
	HealthCheckAddr     string         `json:"health_grpc_addr"`
	DatabasePath        string         `json:"db_path"`
	KeyFilePath         string         `json:"key_file"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	LockDebounce        timex.Duration `json:"lock_debounce"`
	UnlockRetryDelay    timex.Duration `json:"unlock_retry_delay"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c/-config in args.
// It panics on read or decode errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.AnonKey, jc.AnonKey)
	setString(&cfg.HealthCheckAddr, jc.HealthCheckAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.KeyFilePath, jc.KeyFilePath)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.LockDebounce.Duration > 0 {
		cfg.LockDebounce = jc.LockDebounce.Duration
	}
	if jc.UnlockRetryDelay.Duration > 0 {
		cfg.UnlockRetryDelay = jc.UnlockRetryDelay.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
