package checker

import "testing"

func TestDecodeRunParams(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantErr bool
		check   func(t *testing.T, p RunParams)
	}{
		{
			name: "empty string decodes to zero params",
			in:   "",
			check: func(t *testing.T, p RunParams) {
				if p.Workers != nil || p.RetryAttempts != nil || p.ReservedPrefix != nil || p.DebugTimings != nil || p.Extra != nil {
					t.Fatalf("params = %+v, want zero", p)
				}
			},
		},
		{
			name: "whitespace only decodes to zero params",
			in:   "  \n\t ",
			check: func(t *testing.T, p RunParams) {
				if p.Workers != nil || p.Extra != nil {
					t.Fatalf("params = %+v, want zero", p)
				}
			},
		},
		{
			name: "known keys",
			in:   `{"workers": 8, "retry_attempts": 2, "reserved_prefix": "STG_", "debug_timings": true}`,
			check: func(t *testing.T, p RunParams) {
				if p.Workers == nil || *p.Workers != 8 {
					t.Fatalf("workers = %v", p.Workers)
				}
				if p.RetryAttempts == nil || *p.RetryAttempts != 2 {
					t.Fatalf("retry_attempts = %v", p.RetryAttempts)
				}
				if p.ReservedPrefix == nil || *p.ReservedPrefix != "STG_" {
					t.Fatalf("reserved_prefix = %v", p.ReservedPrefix)
				}
				if p.DebugTimings == nil || !*p.DebugTimings {
					t.Fatalf("debug_timings = %v", p.DebugTimings)
				}
			},
		},
		{
			name: "unknown keys carried through",
			in:   `{"workers": 2, "ticket": "OPS-1412", "dry_run_note": true}`,
			check: func(t *testing.T, p RunParams) {
				if len(p.Extra) != 2 {
					t.Fatalf("extra = %v, want 2 keys", p.Extra)
				}
				if p.Extra["ticket"] != "OPS-1412" {
					t.Fatalf("extra ticket = %v", p.Extra["ticket"])
				}
			},
		},
		{
			name:    "malformed json fails",
			in:      `{"workers": `,
			wantErr: true,
		},
		{
			name:    "non-object payload fails",
			in:      `[1, 2, 3]`,
			wantErr: true,
		},
		{
			name:    "wrong type on known key fails",
			in:      `{"workers": "lots"}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p, err := DecodeRunParams(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeRunParams: %v", err)
			}
			tc.check(t, p)
		})
	}
}

func TestRunParamsApplyOverlaysBase(t *testing.T) {
	t.Parallel()

	base := Runtime{Workers: 4, ReservedPrefix: "T_"}

	w := 16
	dbg := true
	p := RunParams{Workers: &w, DebugTimings: &dbg}

	got := p.Apply(base)
	if got.Workers != 16 {
		t.Fatalf("Workers = %d, want 16", got.Workers)
	}
	if got.ReservedPrefix != "T_" {
		t.Fatalf("ReservedPrefix = %q, want base value kept", got.ReservedPrefix)
	}
	if !got.DebugTimings {
		t.Fatal("DebugTimings not applied")
	}
}

func TestRuntimeDefaults(t *testing.T) {
	t.Parallel()

	rt := Runtime{}.withDefaults()
	if rt.Workers != DefaultWorkers {
		t.Fatalf("Workers = %d, want %d", rt.Workers, DefaultWorkers)
	}
	if rt.ReservedPrefix != DefaultReservedPrefix {
		t.Fatalf("ReservedPrefix = %q, want %q", rt.ReservedPrefix, DefaultReservedPrefix)
	}
	if rt.RetryAttempts != 0 {
		t.Fatalf("RetryAttempts = %d, want 0", rt.RetryAttempts)
	}

	rt = Runtime{Workers: -3, RetryAttempts: -1}.withDefaults()
	if rt.Workers != DefaultWorkers || rt.RetryAttempts != 0 {
		t.Fatalf("negative knobs not normalized: %+v", rt)
	}
}
