package main

import (
	"context"
	"os"

	"github.com/dukex/followup/pkg/cmd"
	"github.com/dukex/followup/pkg/log"
	"github.com/dukex/followup/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "followup-api"
)

func main() {
	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	}, cmd.EngineFlags()...)

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Manage follow-up sequences and receive lead events",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Followup API")

			if command.Bool("tracing") {
				tracerProvider, err := otelhelper.Setup(ctx, serviceName)
				if err != nil {
					return err
				}

				defer func() {
					if err := tracerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			engine, err := cmd.NewEngine(ctx, cmd.EngineConfigFrom(command, serviceName), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := engine.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close engine", "error", err)
				}
			}()

			api := NewAPI(logger, engine)

			return api.Start(ctx, command.Int("port"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		log.WithModule("api").Error("Followup API stopped", "error", err)
		os.Exit(1)
	}
}
