package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to create a repository.
//
// When to use:
//   - Use Config when constructing a Repository via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Repository is a backend-agnostic interface for the reference-code
// maintenance task.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the checker engine needs. Each backend implements these
// semantics in its own idiomatic way (Postgres numbered placeholders,
// SQLite ?, SQL Server @p, etc).
type Repository interface {
	// Close releases any backend resources (connections, prepared statements, etc).
	//
	// Edge cases:
	//   - Implementations should be safe to call once at process shutdown.
	//   - Callers should treat Close as "call once".
	Close()

	// EnsureLogTables creates the undefined_log and process_params tables
	// when absent. Idempotent; safe to run on every invocation.
	EnsureLogTables(ctx context.Context) error

	// SelectProcessParams returns the ordered (run_flag, params) rows for a
	// (client, task) pair from the process_params table.
	SelectProcessParams(ctx context.Context, client, task string) ([]ProcessParam, error)

	// LoadMappings returns the active mapping rows from code_source,
	// excluding fact tables whose name starts with reservedPrefix.
	//
	// Every returned mapping has already passed identifier validation;
	// rows with unusable identifiers cause an error rather than a partial list.
	LoadMappings(ctx context.Context, reservedPrefix string) ([]Mapping, error)

	// SelectUndefinedCodes runs the anti-join for one mapping and returns the
	// distinct non-null codes present in the fact column but absent from the
	// reference table. Order is backend-defined; callers must not rely on it.
	SelectUndefinedCodes(ctx context.Context, m Mapping) ([]string, error)

	// RemediateCode inserts the placeholder dimension row and the matching
	// undefined_log row in ONE transaction. A duplicate-key failure on the
	// dimension insert fails this code only and leaves the audit log untouched.
	RemediateCode(ctx context.Context, m Mapping, code, description string, now time.Time) error
}

// ---- backend factories (mirrors the registry used for table loading) ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	factoryMu.RLock()
	f := factories[cfg.Kind]
	factoryMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
