package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/graphroute/pkg/cmd"
	"github.com/dukex/graphroute/pkg/log"
	"github.com/dukex/graphroute/pkg/worker"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "graphroute-api"
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
		&cli.StringFlag{
			Name:    "overdue-schedule",
			Usage:   "Cron expression of the overdue task sweep of the embedded worker",
			Value:   worker.DefaultOverdueSchedule,
			Sources: cli.EnvVars("OVERDUE_SCHEDULE"),
		},
	}, cmd.CommonFlags()...)

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Start, resume and inspect graph routes",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action:                run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing graphroute API")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := cmd.ConfigFromCommand(command, serviceName)

	runtime, err := cmd.NewRuntime(ctx, logger, config)
	if err != nil {
		return err
	}

	defer func() {
		err := runtime.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close runtime", "error", err)
		}
	}()

	// The in-memory bus only reaches subscribers of this process, so async
	// requests are served by a worker running next to the API.
	if config.EventBus == "gochannel" {
		w := worker.New("embedded", runtime.Engine, runtime.Tasks, runtime.EventBus, logger,
			worker.WithOverdueSchedule(command.String("overdue-schedule")),
			worker.WithTracer(runtime.Tracer),
		)

		err = w.Start(ctx)
		if err != nil {
			return err
		}

		defer w.Stop(context.Background())
	}

	api := NewAPI(logger, runtime.Engine, runtime.Catalog, runtime.Tasks, runtime.Persistence, runtime.EventBus)

	err = api.Start(ctx, command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API", "error", err)

		return err
	}

	return nil
}
