// Package scanner periodically finds due assignments and hands them to the
// executor with bounded concurrency.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/followup/pkg/executor"
	"github.com/dukex/followup/pkg/models"
	"github.com/dukex/followup/pkg/otelhelper"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSchedule    = "@every 1h"
	DefaultConcurrency = 4
)

// ErrScanInProgress is returned by ScanOnce while another scan of this scanner runs.
var ErrScanInProgress = errors.New("scan already in progress")

// DueLister lists assignments whose next step is due.
type DueLister interface {
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]*models.SequenceAssignment, error)
}

// StepExecutor runs one assignment's due step.
type StepExecutor interface {
	Execute(ctx context.Context, assignment *models.SequenceAssignment) (*executor.Result, error)
}

type Config struct {
	// Schedule is a robfig/cron spec; descriptors such as "@every 15m" are accepted.
	Schedule string
	// Concurrency bounds the executions running at once.
	Concurrency int
	// BatchSize caps the rows handled per scan; 0 handles every due row.
	BatchSize int
}

// Report summarizes one scan.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Due        int       `json:"due"`
	Executed   int       `json:"executed"`
	Completed  int       `json:"completed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Errors     int       `json:"errors"`
	// NotDispatched counts rows left due because the scan was canceled.
	NotDispatched int `json:"not_dispatched"`
}

type Scanner struct {
	lister   DueLister
	executor StepExecutor
	clock    clockwork.Clock
	tracer   trace.Tracer
	logger   *slog.Logger
	config   Config

	running atomic.Bool
	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
}

func New(lister DueLister, exec StepExecutor, clock clockwork.Clock, logger *slog.Logger, config Config) (*Scanner, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}

	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	_, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid scan schedule '%s': %w", config.Schedule, err)
	}

	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Scanner{
		lister:   lister,
		executor: exec,
		clock:    clock,
		tracer:   otelhelper.Tracer("followup.scanner"),
		logger:   logger.With("module", "scanner"),
		config:   config,
	}, nil
}

// ScanOnce executes every assignment due now, oldest due first. Failures of
// single assignments are counted in the report and never abort the scan.
func (s *Scanner) ScanOnce(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer s.running.Store(false)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "scanner.scan")
	defer span.End()

	report := &Report{StartedAt: s.clock.Now().UTC()}

	due, err := s.lister.ListDue(ctx, report.StartedAt, s.config.BatchSize)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list due assignments: %w", err)
	}

	report.Due = len(due)
	span.SetAttributes(attribute.Int(otelhelper.DueCountKey, report.Due))

	var (
		mu    sync.Mutex
		group errgroup.Group
	)

	group.SetLimit(s.config.Concurrency)

	for i, assignment := range due {
		if ctx.Err() != nil {
			mu.Lock()
			report.NotDispatched = len(due) - i
			mu.Unlock()

			break
		}

		group.Go(func() error {
			result, err := s.executor.Execute(ctx, assignment)

			mu.Lock()
			defer mu.Unlock()

			report.record(result, err)

			if err != nil {
				s.logger.ErrorContext(ctx, "assignment execution errored",
					"assignment_id", assignment.ID,
					"error", err,
				)
			}

			return nil
		})
	}

	_ = group.Wait()

	report.FinishedAt = s.clock.Now().UTC()

	s.logger.InfoContext(ctx, "scan finished",
		"due", report.Due,
		"executed", report.Executed,
		"completed", report.Completed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"errors", report.Errors,
		"not_dispatched", report.NotDispatched,
	)

	return report, nil
}

func (r *Report) record(result *executor.Result, err error) {
	if err != nil || result == nil {
		r.Errors++

		return
	}

	switch {
	case result.Outcome == executor.OutcomeExecuted:
		r.Executed++
	case result.Outcome == executor.OutcomeCompleted:
		r.Completed++

		if result.Step != nil {
			r.Executed++
		}
	case result.Outcome.Failed():
		r.Failed++
	default:
		r.Skipped++
	}
}

// Start schedules ScanOnce on the configured cron spec. A tick that fires
// while the previous scan still runs is skipped.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("scanner already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	_, err := c.AddFunc(s.config.Schedule, func() {
		_, err := s.ScanOnce(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "scheduled scan failed", "error", err)
		}
	})
	if err != nil {
		cancel()

		return fmt.Errorf("failed to schedule scan: %w", err)
	}

	c.Start()

	s.cron = c
	s.cancel = cancel

	s.logger.InfoContext(ctx, "scanner started", "schedule", s.config.Schedule, "concurrency", s.config.Concurrency)

	return nil
}

// Stop cancels the running scan, if any, and waits for it to return or for ctx to end.
func (s *Scanner) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	cancel()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "scanner stopped")

	return nil
}

// cronLogger routes robfig/cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
