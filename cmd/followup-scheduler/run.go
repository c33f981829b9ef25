// Package main provides the Followup scheduler binary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/followup/pkg/cmd"
	"github.com/dukex/followup/pkg/config"
	"github.com/dukex/followup/pkg/eventbus"
	"github.com/dukex/followup/pkg/events"
	"github.com/dukex/followup/pkg/log"
	"github.com/dukex/followup/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

var lifecycleEvents = []events.EventType{
	events.AssignmentEnrolledEvent,
	events.AssignmentCompletedEvent,
	events.AssignmentRemovedEvent,
	events.StepExecutedEvent,
	events.StepFailedEvent,
}

func setup(ctx context.Context, command *cli.Command) (*cmd.Engine, *slog.Logger, func(), error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("scheduler")
	shutdown := func() {}

	if command.Bool("tracing") {
		tracerProvider, err := otelhelper.Setup(ctx, serviceName)
		if err != nil {
			return nil, nil, nil, err
		}

		shutdown = func() {
			if err := tracerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}
	}

	engine, err := cmd.NewEngine(ctx, cmd.EngineConfigFrom(command, serviceName), logger)
	if err != nil {
		shutdown()

		return nil, nil, nil, err
	}

	closeAll := func() {
		if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close engine", "error", err)
		}

		shutdown()
	}

	return engine, logger, closeAll, nil
}

// RunScheduler applies the optional seed file, starts the scanner and
// blocks until SIGINT/SIGTERM.
func RunScheduler(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, logger, closeAll, err := setup(ctx, command)
	if err != nil {
		return err
	}
	defer closeAll()

	logger.InfoContext(ctx, "Starting Followup scheduler")

	if path := command.String("seed-file"); path != "" {
		if _, err := applySeed(ctx, engine, path, logger); err != nil {
			return err
		}
	}

	if engine.EventBus != nil {
		if err := logLifecycleEvents(ctx, engine.EventBus, logger); err != nil {
			return err
		}
	}

	if err := engine.Scanner.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	logger.Info("Shutting down Followup scheduler")

	return nil
}

// ScanOnce runs a single scan and writes the report as JSON to out.
func ScanOnce(ctx context.Context, command *cli.Command, out io.Writer) error {
	engine, _, closeAll, err := setup(ctx, command)
	if err != nil {
		return err
	}
	defer closeAll()

	report, err := engine.Scanner.ScanOnce(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

// Seed applies a seed file and exits.
func Seed(ctx context.Context, command *cli.Command) error {
	path := command.String("seed-file")
	if path == "" {
		return errors.New("--seed-file is required")
	}

	engine, logger, closeAll, err := setup(ctx, command)
	if err != nil {
		return err
	}
	defer closeAll()

	_, err = applySeed(ctx, engine, path, logger)

	return err
}

func applySeed(ctx context.Context, engine *cmd.Engine, path string, logger *slog.Logger) (int, error) {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return 0, err
	}

	applied, err := config.ApplySeed(ctx, engine.Sequences, seed, logger)
	if err != nil {
		return applied, fmt.Errorf("failed to apply seed file %s: %w", path, err)
	}

	logger.InfoContext(ctx, "Seed applied", "path", path, "created", applied)

	return applied, nil
}

// logLifecycleEvents subscribes to the sequence lifecycle events and
// writes each one to the log.
func logLifecycleEvents(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	for _, eventType := range lifecycleEvents {
		err := bus.Handle(eventType, func(ctx context.Context, event any) error {
			logger.InfoContext(ctx, "Lifecycle event", "event_type", eventType, "event", event)

			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}
