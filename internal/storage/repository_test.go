package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

type stubRepo struct{ dsn string }

func (s *stubRepo) Close()                                     {}
func (s *stubRepo) EnsureLogTables(context.Context) error      { return nil }
func (s *stubRepo) SelectProcessParams(ctx context.Context, client, task string) ([]ProcessParam, error) {
	return nil, nil
}
func (s *stubRepo) LoadMappings(ctx context.Context, reservedPrefix string) ([]Mapping, error) {
	return nil, nil
}
func (s *stubRepo) SelectUndefinedCodes(ctx context.Context, m Mapping) ([]string, error) {
	return nil, nil
}
func (s *stubRepo) RemediateCode(ctx context.Context, m Mapping, code, description string, now time.Time) error {
	return nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("test_kind_ok", func(ctx context.Context, cfg Config) (Repository, error) {
		return &stubRepo{dsn: cfg.DSN}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "test_kind_ok", DSN: "dsn-value"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := repo.(*stubRepo)
	if !ok || got.dsn != "dsn-value" {
		t.Fatalf("New returned %#v, want stub with DSN passed through", repo)
	}
}

func TestNewRejectsMissingOrUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("want error for empty kind")
	}

	_, err := New(context.Background(), Config{Kind: "no_such_backend"})
	if err == nil || !strings.Contains(err.Error(), "no_such_backend") {
		t.Fatalf("err = %v, want unsupported-kind error naming the kind", err)
	}
}

func TestRegisterPanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("want panic")
				}
			}()
			fn()
		})
	}

	mustPanic("empty kind", func() {
		Register("", func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil })
	})
	mustPanic("nil factory", func() {
		Register("test_kind_nil", nil)
	})
	mustPanic("duplicate kind", func() {
		f := func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil }
		Register("test_kind_dup", f)
		Register("test_kind_dup", f)
	})
}
