package config

import "testing"

func TestNormalizeClient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"ACME", "acme"},
		{"  Acme  ", "acme"},
		{"acme", "acme"},
		{"KÖLN", "köln"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeClient(tc.in); got != tc.want {
			t.Errorf("NormalizeClient(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadRequiresClient(t *testing.T) {
	if _, err := Load("   ", "dev"); err == nil {
		t.Fatal("want error for blank client")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REFCHECK_STORAGE", "")
	t.Setenv("REFCHECK_METRICS", "")
	t.Setenv("REFCHECK_DSN", "")

	s, err := Load("acme", "dev")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.StorageKind != "postgres" {
		t.Errorf("StorageKind = %q, want postgres", s.StorageKind)
	}
	if s.MetricsBackend != "none" {
		t.Errorf("MetricsBackend = %q, want none", s.MetricsBackend)
	}
	if s.Client != "acme" || s.Environ != "dev" {
		t.Errorf("client/environ = %q/%q", s.Client, s.Environ)
	}
}

func TestLoadClientDSNWins(t *testing.T) {
	t.Setenv("REFCHECK_DSN", "postgres://shared")
	t.Setenv("REFCHECK_DSN_ACME", "postgres://acme-only")

	s, err := Load("ACME", "prod")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DSN != "postgres://acme-only" {
		t.Errorf("DSN = %q, want client-specific", s.DSN)
	}

	s, err = Load("other", "prod")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DSN != "postgres://shared" {
		t.Errorf("DSN = %q, want shared fallback", s.DSN)
	}
}

func TestClientDSNKeySanitizesName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"acme", "REFCHECK_DSN_ACME"},
		{"acme-eu", "REFCHECK_DSN_ACME_EU"},
		{"club99", "REFCHECK_DSN_CLUB99"},
	}
	for _, tc := range cases {
		if got := clientDSNKey(tc.in); got != tc.want {
			t.Errorf("clientDSNKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
