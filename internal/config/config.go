// Package config resolves per-client runtime settings from the environment.
//
// Resolution order for the DSN:
//  1. REFCHECK_DSN_<CLIENT> (client-specific, wins)
//  2. REFCHECK_DSN
//
// A .env file in the working directory is loaded first when present, so local
// runs do not need exported variables. Missing .env is not an error.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Settings is everything the binary needs to run for one client.
type Settings struct {
	Client  string // normalized (lower-cased) client code
	Environ string // environment name, e.g. "dev", "prod"

	StorageKind    string // "postgres" | "sqlite" | "mssql"
	DSN            string
	MetricsBackend string // "datadog" | "none"
	TagsCSV        string // extra metric tags, comma-separated
}

var lower = cases.Lower(language.Und)

// NormalizeClient lower-cases a client code with full Unicode case folding,
// so "ACME" and "acme" resolve to the same client.
func NormalizeClient(client string) string {
	return lower.String(strings.TrimSpace(client))
}

// Load resolves settings for one client and environment.
//
// Edge cases:
//   - An empty client after trimming is an error; everything downstream keys
//     on the client code.
//   - Environment variables override nothing the caller set explicitly;
//     callers overlay CLI flags on top of the returned Settings.
func Load(client, environ string) (Settings, error) {
	client = NormalizeClient(client)
	if client == "" {
		return Settings{}, fmt.Errorf("config: client code is required")
	}

	// Ignore a missing .env; any other read error is real.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("config: load .env: %w", err)
	}

	s := Settings{
		Client:         client,
		Environ:        environ,
		StorageKind:    envOr("REFCHECK_STORAGE", "postgres"),
		MetricsBackend: envOr("REFCHECK_METRICS", "none"),
		TagsCSV:        os.Getenv("REFCHECK_TAGS"),
	}

	if dsn := os.Getenv(clientDSNKey(client)); dsn != "" {
		s.DSN = dsn
	} else {
		s.DSN = os.Getenv("REFCHECK_DSN")
	}

	return s, nil
}

// clientDSNKey maps a client code to its env var, e.g. "acme" ->
// REFCHECK_DSN_ACME. Characters that cannot appear in an env var name become
// underscores.
func clientDSNKey(client string) string {
	var b strings.Builder
	b.WriteString("REFCHECK_DSN_")
	for _, r := range strings.ToUpper(client) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
