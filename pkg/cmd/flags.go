package cmd

import (
	"strings"

	cli "github.com/urfave/cli/v3"
)

// CommonFlags are the flags every binary needs to build a Runtime.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://, postgres://, memory://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "models-path",
			Usage:   "Directory containing route model JSON files",
			Value:   "./models",
			Sources: cli.EnvVars("MODELS_PATH"),
		},
		&cli.StringFlag{
			Name:    "chains-path",
			Usage:   "JSON file with chain definitions",
			Sources: cli.EnvVars("CHAINS_PATH"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated list of Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the route instance lock, in-process lock when empty",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces with the OTLP HTTP exporter",
			Sources: cli.EnvVars("OTEL_ENABLED"),
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
	}
}

func ConfigFromCommand(command *cli.Command, serviceName string) Config {
	return Config{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		ModelsPath:   command.String("models-path"),
		ChainsPath:   command.String("chains-path"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: strings.Split(command.String("kafka-brokers"), ","),
		RedisURL:     command.String("redis-url"),
		OtelEnabled:  command.Bool("otel-enabled"),
	}
}
