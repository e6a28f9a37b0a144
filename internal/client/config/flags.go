package config

import (
	"flag"
	"time"

	"github.com/santinotanus/medtrace/internal/flagx"
)

// parseFlags overlays cfg with the flags documented in the package comment.
// Unknown arguments are filtered out first so other parsers can share args.
// It panics on malformed values.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"a", "k", "g", "d", "i", "l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "a", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "anonymous API key")
	fs.StringVar(&cfg.HealthCheckAddr, "g", cfg.HealthCheckAddr, "gRPC health endpoint host:port")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
