// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/executor"
	"github.com/dukex/followup/pkg/intake"
	"github.com/dukex/followup/pkg/leads"
	"github.com/dukex/followup/pkg/notify"
	"github.com/dukex/followup/pkg/persistence"
	"github.com/dukex/followup/pkg/scanner"
	"github.com/dukex/followup/pkg/services"
	"github.com/dukex/followup/pkg/tracker"
)

// EngineConfig carries the settings shared by every binary.
type EngineConfig struct {
	DatabaseURL    string
	RedisURL       string
	EventBus       string
	KafkaBrokers   string
	ServiceName    string
	Gateway        GatewayConfig
	SMTP           notify.SMTPConfig
	Scan           scanner.Config
	GatewayTimeout time.Duration
	MaxAttempts    int
}

// Engine is the fully wired follow-up engine.
type Engine struct {
	Persistence persistence.Persistence
	Directory   leads.Directory
	EventBus    eventbus.EventBus
	Tracker     *tracker.Tracker
	Executor    *executor.Executor
	Scanner     *scanner.Scanner
	Notifier    *notify.Notifier
	Intake      *intake.Intake
	Sequences   *services.Sequence
	Assignments *services.Assignment

	closers []func() error
	logger  *slog.Logger
}

// NewEngine opens storage, the lead directory and the event bus and wires
// the tracker, executor, scanner and intake on top of them. Close releases
// everything that was opened, also after a partial failure.
func NewEngine(ctx context.Context, config EngineConfig, logger *slog.Logger) (*Engine, error) {
	e := &Engine{logger: logger}

	err := e.open(ctx, config)
	if err != nil {
		_ = e.Close(ctx)

		return nil, err
	}

	return e, nil
}

func (e *Engine) open(ctx context.Context, config EngineConfig) error {
	p, err := NewPersistence(ctx, e.logger, config.DatabaseURL)
	if err != nil {
		return err
	}

	e.Persistence = p
	e.closers = append(e.closers, func() error { return p.Close(ctx) })

	directory, closeDirectory, err := NewDirectory(ctx, e.logger, config.DatabaseURL, p, config.RedisURL)
	if err != nil {
		return err
	}

	e.Directory = directory
	e.closers = append(e.closers, closeDirectory)

	bus, err := NewEventBus(config.EventBus, config.KafkaBrokers, config.ServiceName, e.logger)
	if err != nil {
		return err
	}

	var publisher eventbus.EventPublisher

	if bus != nil {
		e.EventBus = bus
		publisher = bus
		e.closers = append(e.closers, bus.Close)
	}

	gw, err := NewGateway(config.Gateway, publisher, e.logger)
	if err != nil {
		return err
	}

	e.Tracker = tracker.New(p, nil, e.logger)
	e.Executor = executor.New(p, e.Tracker, directory, gw, publisher, nil, e.logger, executor.Config{
		GatewayTimeout: config.GatewayTimeout,
		MaxAttempts:    config.MaxAttempts,
	})

	e.Scanner, err = scanner.New(e.Tracker, e.Executor, nil, e.logger, config.Scan)
	if err != nil {
		return err
	}

	var notifier intake.Notifier

	if config.SMTP.Enabled() {
		e.Notifier, err = notify.NewSMTP(config.SMTP, e.logger)
		if err != nil {
			return err
		}

		notifier = e.Notifier
	}

	e.Intake = intake.New(directory, p.SequenceRepository(), e.Tracker, publisher, notifier, e.logger)
	e.Sequences = services.NewSequence(p)
	e.Assignments = services.NewAssignment(p, e.Tracker, directory, publisher, e.logger)

	return nil
}

// Close stops the scanner, waits for pending notifications and closes
// every opened resource in reverse order.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.Scanner != nil {
		errs = append(errs, e.Scanner.Stop(ctx))
	}

	if e.Notifier != nil {
		e.Notifier.Wait()
	}

	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}

	e.closers = nil

	return errors.Join(errs...)
}
