// Package config loads runtime configuration for the MedTrace terminal client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. A .env file in the working directory (if present) and MEDTRACE_*
//     environment variables.
//  3. Optional JSON file selected via -c or -config.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   base URL of the hosted backend
//	-k string   anonymous (publishable) API key
//	-g string   host:port of the backend gRPC health endpoint (optional)
//	-d string   path of the local SQLite database
//	-i int      online status check interval (seconds)
//	-l string   log level: debug, info, warn, error
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "100ms" or
// integer nanoseconds:
//
//	{
//	  "backend_url": "https://project.example.co",
//	  "anon_key": "public-anon-key",
//	  "online_check_interval": "3s",
//	  "lock_debounce": "100ms",
//	  "unlock_retry_delay": "1s"
//	}
package config
