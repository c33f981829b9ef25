package main

import (
	"context"
	"os"

	"github.com/dukex/followup/pkg/cmd"
	"github.com/dukex/followup/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "followup-scheduler"

func main() {
	seedFlag := &cli.StringFlag{
		Name:    "seed-file",
		Usage:   "YAML file with sequence definitions to create or update",
		Sources: cli.EnvVars("SEED_FILE"),
	}

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Execute due follow-up steps on a schedule",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			{
				Name:    "run",
				Aliases: []string{"r"},
				Usage:   "Start the periodic due-step scanner",
				Flags:   append(cmd.EngineFlags(), seedFlag),
				Action: func(ctx context.Context, command *cli.Command) error {
					return RunScheduler(ctx, command)
				},
			},
			{
				Name:  "scan",
				Usage: "Run one scan and print its report",
				Flags: cmd.EngineFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					return ScanOnce(ctx, command, os.Stdout)
				},
			},
			{
				Name:  "seed",
				Usage: "Create or update sequences from a seed file",
				Flags: append(cmd.EngineFlags(), seedFlag),
				Action: func(ctx context.Context, command *cli.Command) error {
					return Seed(ctx, command)
				},
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("scheduler").Error("Followup scheduler stopped", "error", err)
		os.Exit(1)
	}
}
