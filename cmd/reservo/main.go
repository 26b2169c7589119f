package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	cliBooking "github.com/felixgeelhaar/reservo/adapter/cli/booking"
	cliOutbox "github.com/felixgeelhaar/reservo/adapter/cli/outbox"
	"github.com/felixgeelhaar/reservo/internal/app"
	"github.com/felixgeelhaar/reservo/pkg/config"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := observability.NewLogger(observability.DefaultLogConfig("reservo"))
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// The CLI logs to stderr so --json output stays clean.
	logCfg := observability.LogConfigFor("reservo", cfg.LogLevel, cfg.LogFormat, cfg.AppEnv)
	logCfg.Output = os.Stderr
	logger := observability.NewLogger(logCfg)
	cli.SetLogger(logger)
	app.Version = cli.CurrentBuild().Version

	// Commands that need no database (help, version) still run when the
	// container cannot be built; the others fail with cli.ErrNoApp.
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Warn("running without a database", "error", err)
	} else {
		cli.SetApp(cli.NewApp(container))
	}

	cli.AddCommand(cliBooking.Commands()...)
	cli.AddCommand(cliOutbox.Cmd)

	code := cli.Execute(ctx)
	if container != nil {
		container.Close()
	}
	stop()
	os.Exit(code)
}
