package checker

// This file defines the run-control surface: the Runtime knobs the engine
// honors and the flat JSON params object stored per run in process_params.

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskName is the process_params task this tool runs under.
const TaskName = "handle_undefined_codes"

const (
	// DefaultWorkers bounds concurrent detection queries when the run does
	// not say otherwise.
	DefaultWorkers = 4

	// DefaultReservedPrefix marks staging tables the mapping lookup skips.
	DefaultReservedPrefix = "T_"
)

// Runtime controls execution behavior of one engine run.
type Runtime struct {
	// Workers bounds concurrent detection queries. <=0 means DefaultWorkers.
	Workers int

	// RetryAttempts is the number of EXTRA attempts for a failed detection
	// query. 0 keeps the fail-fast behavior; retries are opt-in.
	RetryAttempts int

	// ReservedPrefix excludes staging tables from the mapping lookup.
	// Empty means DefaultReservedPrefix.
	ReservedPrefix string

	// DebugTimings enables per-mapping timing log lines.
	DebugTimings bool
}

func (rt Runtime) withDefaults() Runtime {
	if rt.Workers <= 0 {
		rt.Workers = DefaultWorkers
	}
	if rt.RetryAttempts < 0 {
		rt.RetryAttempts = 0
	}
	if rt.ReservedPrefix == "" {
		rt.ReservedPrefix = DefaultReservedPrefix
	}
	return rt
}

// RunParams is the flat JSON object stored in process_params.params.
//
// Known keys override Runtime knobs; unknown keys are carried through in
// Extra so operators can stash run notes without breaking decoding.
type RunParams struct {
	Workers        *int
	RetryAttempts  *int
	ReservedPrefix *string
	DebugTimings   *bool

	Extra map[string]any
}

// DecodeRunParams parses the params column for one process_params row.
//
// Edge cases:
//   - Empty or all-whitespace input decodes to the zero RunParams.
//   - The payload must be a flat JSON object; arrays and scalars are errors.
//   - Known keys with the wrong JSON type fail the whole decode, so a typo'd
//     entry is surfaced instead of silently running with defaults.
func DecodeRunParams(raw string) (RunParams, error) {
	var p RunParams

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return p, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return p, fmt.Errorf("params: %w", err)
	}

	for key, val := range obj {
		switch key {
		case "workers":
			var v int
			if err := json.Unmarshal(val, &v); err != nil {
				return RunParams{}, fmt.Errorf("params: workers: %w", err)
			}
			p.Workers = &v

		case "retry_attempts":
			var v int
			if err := json.Unmarshal(val, &v); err != nil {
				return RunParams{}, fmt.Errorf("params: retry_attempts: %w", err)
			}
			p.RetryAttempts = &v

		case "reserved_prefix":
			var v string
			if err := json.Unmarshal(val, &v); err != nil {
				return RunParams{}, fmt.Errorf("params: reserved_prefix: %w", err)
			}
			p.ReservedPrefix = &v

		case "debug_timings":
			var v bool
			if err := json.Unmarshal(val, &v); err != nil {
				return RunParams{}, fmt.Errorf("params: debug_timings: %w", err)
			}
			p.DebugTimings = &v

		default:
			var v any
			if err := json.Unmarshal(val, &v); err != nil {
				return RunParams{}, fmt.Errorf("params: %s: %w", key, err)
			}
			if p.Extra == nil {
				p.Extra = make(map[string]any)
			}
			p.Extra[key] = v
		}
	}

	return p, nil
}

// Apply overlays the decoded params onto a base runtime.
func (p RunParams) Apply(rt Runtime) Runtime {
	if p.Workers != nil {
		rt.Workers = *p.Workers
	}
	if p.RetryAttempts != nil {
		rt.RetryAttempts = *p.RetryAttempts
	}
	if p.ReservedPrefix != nil {
		rt.ReservedPrefix = *p.ReservedPrefix
	}
	if p.DebugTimings != nil {
		rt.DebugTimings = *p.DebugTimings
	}
	return rt
}
