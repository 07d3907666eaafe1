// Package main provides the graphroute worker, which processes asynchronous
// task completions and resumes and reports overdue tasks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/graphroute/pkg/cmd"
	"github.com/dukex/graphroute/pkg/log"
	"github.com/dukex/graphroute/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "graphroute-worker"

func main() {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Value:   "",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "overdue-schedule",
			Usage:   "Cron expression of the overdue task sweep, disabled when empty",
			Value:   worker.DefaultOverdueSchedule,
			Sources: cli.EnvVars("OVERDUE_SCHEDULE"),
		},
	}, cmd.CommonFlags()...)

	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Process route commands published by the API",
		Flags:                 flags,
		Action:                run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func workerID(configured string) string {
	if configured != "" {
		return configured
	}

	return "worker-" + uuid.New().String()[:8]
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	id := workerID(command.String("worker-id"))
	logger := log.WithModule(serviceName).With("worker_id", id)

	logger.InfoContext(ctx, "Initializing graphroute worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runtime, err := cmd.NewRuntime(ctx, logger, cmd.ConfigFromCommand(command, serviceName))
	if err != nil {
		return err
	}

	defer func() {
		err := runtime.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close runtime", "error", err)
		}
	}()

	w := worker.New(id, runtime.Engine, runtime.Tasks, runtime.EventBus, logger,
		worker.WithOverdueSchedule(command.String("overdue-schedule")),
		worker.WithTracer(runtime.Tracer),
	)

	err = w.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutting down worker")

	w.Stop(context.Background())

	return nil
}
