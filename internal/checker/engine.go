package checker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"refcheck/internal/metrics"
	"refcheck/internal/storage"
)

// Logger is the minimal logging interface used by the checker.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// DetectFn is a seam for providing the per-mapping detection query.
//
// When to use:
//   - Unit tests: inject deterministic code lists without a database.
//   - Production: leave nil; the engine uses Repo.SelectUndefinedCodes.
type DetectFn func(ctx context.Context, m storage.Mapping) ([]string, error)

// Engine detects undefined codes per mapping and remediates them.
//
// Concurrency model:
//   - Detection queries fan out over a bounded worker pool.
//   - A WaitGroup covers every worker; a closer goroutine waits for ALL of
//     them and then closes the results channel, so a failed worker can never
//     leave the consumer blocked or a batch unprocessed.
//   - The consumer (the Run goroutine) drains results and applies updates
//     sequentially; the database writes are single-producer.
type Engine struct {
	Repo   storage.Repository
	Logger Logger

	// Metrics receives run counters and detection timings. When nil the
	// engine uses metrics.Noop.
	Metrics metrics.Backend

	// Detect is an optional seam to make Engine unit-testable.
	// When nil, Repo.SelectUndefinedCodes is used.
	Detect DetectFn

	// Now is injected for deterministic audit timestamps in tests.
	// When nil, time.Now is used.
	Now func() time.Time
}

// Summary reports what one run did.
type Summary struct {
	Mappings       int // mappings checked
	FailedMappings int // mappings whose detection query failed
	Batches        int // mappings that produced at least one undefined code
	Codes          int // undefined codes found
	Inserted       int // codes remediated (placeholder + audit row)
	FailedInserts  int // codes whose remediation failed
}

// result carries one worker's outcome for one mapping.
type result struct {
	batch storage.Batch
	dur   time.Duration
	err   error
}

// Run loads active mappings and processes every one of them.
//
// Errors:
//   - A mapping-lookup failure aborts the run before fan-out.
//   - Per-mapping detection errors and per-code update errors are isolated:
//     siblings still run, and the joined error is returned at the end.
func (e *Engine) Run(ctx context.Context, rt Runtime) (Summary, error) {
	if e.Repo == nil {
		return Summary{}, fmt.Errorf("engine: Repo is required")
	}

	rt = rt.withDefaults()
	logf := e.logger()
	mb := e.metrics()

	loadStart := time.Now()
	mappings, err := e.Repo.LoadMappings(ctx, rt.ReservedPrefix)
	if err != nil {
		return Summary{}, fmt.Errorf("mapping lookup: %w", err)
	}
	logf("stage=mapping_lookup ok mappings=%d duration=%s", len(mappings), durMS(loadStart))

	sum := Summary{Mappings: len(mappings)}
	if len(mappings) == 0 {
		return sum, nil
	}

	workers := rt.Workers
	if workers > len(mappings) {
		workers = len(mappings)
	}

	jobs := make(chan storage.Mapping)
	results := make(chan result, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for m := range jobs {
				start := time.Now()
				codes, err := e.detectWithRetry(ctx, m, rt.RetryAttempts)
				results <- result{
					batch: storage.Batch{Mapping: m, BadCodes: codes},
					dur:   time.Since(start),
					err:   err,
				}
			}
		}()
	}

	// Close results only after every worker has exited, including workers
	// whose queries failed.
	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		defer close(jobs)
		for _, m := range mappings {
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range results {
		m := res.batch.Mapping

		if res.err != nil {
			sum.FailedMappings++
			mb.IncCounter("refcheck_mappings_total", 1, metrics.Labels{"status": "error"})
			mb.ObserveHistogram("refcheck_detect_duration_seconds", res.dur.Seconds(), metrics.Labels{"status": "error"})
			logf("stage=detect table=%s column=%s status=error duration=%s err=%v",
				m.TableName, m.ColumnName, res.dur.Truncate(time.Millisecond), res.err)
			errs = append(errs, fmt.Errorf("detect %s.%s: %w", m.TableName, m.ColumnName, res.err))
			continue
		}

		mb.IncCounter("refcheck_mappings_total", 1, metrics.Labels{"status": "ok"})
		mb.ObserveHistogram("refcheck_detect_duration_seconds", res.dur.Seconds(), metrics.Labels{"status": "ok"})
		if rt.DebugTimings {
			logf("stage=detect table=%s column=%s status=ok undefined=%d duration=%s",
				m.TableName, m.ColumnName, len(res.batch.BadCodes), res.dur.Truncate(time.Millisecond))
		}

		if len(res.batch.BadCodes) == 0 {
			continue
		}
		sum.Batches++
		sum.Codes += len(res.batch.BadCodes)
		mb.IncCounter("refcheck_codes_total", float64(len(res.batch.BadCodes)), nil)

		e.applyBatch(ctx, res.batch, &sum, &errs)
	}

	logf("stage=summary mappings=%d failed_mappings=%d batches=%d codes=%d inserted=%d failed_inserts=%d",
		sum.Mappings, sum.FailedMappings, sum.Batches, sum.Codes, sum.Inserted, sum.FailedInserts)

	return sum, errors.Join(errs...)
}

// applyBatch remediates every code in one batch sequentially.
//
// Edge cases:
//   - One failed code does not stop the rest of the batch; each code's
//     placeholder+audit pair stays atomic inside RemediateCode.
func (e *Engine) applyBatch(ctx context.Context, b storage.Batch, sum *Summary, errs *[]error) {
	logf := e.logger()
	mb := e.metrics()
	m := b.Mapping

	for _, code := range b.BadCodes {
		desc := storage.PlaceholderDescription(code)
		err := e.Repo.RemediateCode(ctx, m, code, desc, e.now())
		if err != nil {
			sum.FailedInserts++
			mb.IncCounter("refcheck_inserts_total", 1, metrics.Labels{"status": "error"})
			logf("stage=update ref_table=%s code=%q status=error err=%v", m.RefTableName, code, err)
			*errs = append(*errs, fmt.Errorf("remediate %s code=%q: %w", m.RefTableName, code, err))
			continue
		}

		sum.Inserted++
		mb.IncCounter("refcheck_inserts_total", 1, metrics.Labels{"status": "ok"})
		logf("stage=update ref_table=%s code=%q status=ok", m.RefTableName, code)
	}
}

// detectWithRetry runs the detection query with optional bounded retries.
//
// Retries are opt-in: attempts=0 keeps the fail-fast behavior. Backoff is a
// short linear delay; detection queries are read-only so re-running is safe.
func (e *Engine) detectWithRetry(ctx context.Context, m storage.Mapping, attempts int) ([]string, error) {
	detect := e.Detect
	if detect == nil {
		detect = e.Repo.SelectUndefinedCodes
	}

	var lastErr error
	for try := 0; try <= attempts; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(try) * 100 * time.Millisecond):
			}
		}

		codes, err := detect(ctx, m)
		if err == nil {
			return codes, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

func (e *Engine) metrics() metrics.Backend {
	if e.Metrics == nil {
		return metrics.Noop{}
	}
	return e.Metrics
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
