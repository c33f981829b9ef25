package cmd

import (
	"github.com/dukex/followup/pkg/executor"
	"github.com/dukex/followup/pkg/notify"
	"github.com/dukex/followup/pkg/scanner"
	cli "github.com/urfave/cli/v3"
)

// EngineFlags returns the flags every binary accepts to build an Engine.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a directory path)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel, none)",
			Value:   "none",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka broker list",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the lead directory cache (disabled when empty)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "gateway",
			Usage:   "Tagging gateway type (webhook, event, log)",
			Sources: cli.EnvVars("GATEWAY_TYPE"),
		},
		&cli.StringFlag{
			Name:    "gateway-url",
			Usage:   "CRM tagging endpoint used by the webhook gateway",
			Sources: cli.EnvVars("GATEWAY_URL"),
		},
		&cli.StringFlag{
			Name:    "gateway-token",
			Usage:   "Bearer token sent to the tagging endpoint",
			Sources: cli.EnvVars("GATEWAY_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "gateway-timeout",
			Usage:   "Timeout of one gateway call",
			Value:   executor.DefaultGatewayTimeout,
			Sources: cli.EnvVars("GATEWAY_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Remove an assignment after this many consecutive failures (0 retries forever)",
			Value:   0,
			Sources: cli.EnvVars("MAX_ATTEMPTS"),
		},
		&cli.StringFlag{
			Name:    "scan-schedule",
			Usage:   "Cron spec of the due-step scan",
			Value:   scanner.DefaultSchedule,
			Sources: cli.EnvVars("SCAN_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "scan-concurrency",
			Usage:   "Assignments executed in parallel during a scan",
			Value:   scanner.DefaultConcurrency,
			Sources: cli.EnvVars("SCAN_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "scan-batch-size",
			Usage:   "Maximum assignments handled per scan (0 for all)",
			Sources: cli.EnvVars("SCAN_BATCH_SIZE"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for new-lead notifications (disabled when empty)",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Usage:   "SMTP port",
			Value:   587,
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address of new-lead notifications",
			Sources: cli.EnvVars("SMTP_FROM"),
		},
		&cli.StringFlag{
			Name:    "notify-to",
			Usage:   "Operator address receiving new-lead notifications",
			Sources: cli.EnvVars("SMTP_TO", "NOTIFY_TO"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// EngineConfigFrom reads EngineFlags back from a parsed command.
func EngineConfigFrom(command *cli.Command, serviceName string) EngineConfig {
	timeout := command.Duration("gateway-timeout")
	if timeout <= 0 {
		timeout = executor.DefaultGatewayTimeout
	}

	return EngineConfig{
		DatabaseURL:  command.String("database-url"),
		RedisURL:     command.String("redis-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		ServiceName:  serviceName,
		Gateway: GatewayConfig{
			Type:    command.String("gateway"),
			URL:     command.String("gateway-url"),
			Token:   command.String("gateway-token"),
			Timeout: timeout,
		},
		SMTP: notify.SMTPConfig{
			Host:     command.String("smtp-host"),
			Port:     command.Int("smtp-port"),
			Username: command.String("smtp-username"),
			Password: command.String("smtp-password"),
			From:     command.String("smtp-from"),
			To:       command.String("notify-to"),
		},
		Scan: scanner.Config{
			Schedule:    command.String("scan-schedule"),
			Concurrency: command.Int("scan-concurrency"),
			BatchSize:   command.Int("scan-batch-size"),
		},
		GatewayTimeout: timeout,
		MaxAttempts:    command.Int("max-attempts"),
	}
}
