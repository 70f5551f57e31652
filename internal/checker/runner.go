package checker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"refcheck/internal/metrics"
	"refcheck/internal/storage"
)

// Runner owns one full invocation for a client: open the repository, make
// sure the log tables exist, read the run-control rows, and run the engine
// once per enabled row.
type Runner struct {
	// NewRepository is a storage-agnostic factory seam. Tests inject fakes;
	// NewDefaultRunner wires the registry.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	Logger  Logger
	Metrics metrics.Backend

	// Now is forwarded to the engine for deterministic audit timestamps.
	Now func() time.Time
}

func NewDefaultRunner() *Runner {
	return &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return storage.New(ctx, cfg)
		},
	}
}

// Run executes the task for one client.
//
// Behavior:
//   - No process_params rows for (client, task) means nothing to do; that is
//     success, logged, not an error.
//   - Rows with run_flag != "Y" are skipped.
//   - A row whose params JSON is malformed fails that row only; the other
//     rows still run and the joined error is returned at the end.
func (r *Runner) Run(ctx context.Context, client string, cfg storage.Config, base Runtime) error {
	if r.NewRepository == nil {
		return fmt.Errorf("runner: NewRepository is required")
	}
	logf := r.logger()

	repo, err := r.NewRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage %q: %w", cfg.Kind, err)
	}
	defer repo.Close()

	if err := repo.EnsureLogTables(ctx); err != nil {
		return err
	}

	params, err := repo.SelectProcessParams(ctx, client, TaskName)
	if err != nil {
		return fmt.Errorf("process params client=%q: %w", client, err)
	}
	if len(params) == 0 {
		logf("stage=process_params client=%s task=%s entries=0 nothing to do", client, TaskName)
		return nil
	}

	engine := &Engine{
		Repo:    repo,
		Logger:  r.Logger,
		Metrics: r.Metrics,
		Now:     r.Now,
	}

	var errs []error
	ran := 0
	for i, p := range params {
		if p.RunFlag != "Y" {
			logf("stage=process_params client=%s entry=%d run_flag=%q skipped", client, i, p.RunFlag)
			continue
		}

		decoded, err := DecodeRunParams(p.Params)
		if err != nil {
			logf("stage=process_params client=%s entry=%d status=error err=%v", client, i, err)
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		for key := range decoded.Extra {
			logf("stage=process_params client=%s entry=%d extra_param=%s", client, i, key)
		}

		ran++
		if _, err := engine.Run(ctx, decoded.Apply(base)); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}

	logf("stage=runner client=%s entries=%d ran=%d failed=%d", client, len(params), ran, len(errs))
	return errors.Join(errs...)
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		return func(string, ...any) {}
	}
	return r.Logger.Printf
}
