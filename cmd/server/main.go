// Command server serves filtered Relay connections over the tables of a
// MySQL database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"graphql-sqlfilter/internal/config"
	"graphql-sqlfilter/internal/serverapp"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("graphql-sqlfilter", pflag.ContinueOnError)
	flags.Bool("version", false, "Print version and exit")

	cfg, err := config.LoadWithFlags(flags, args)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if v, _ := flags.GetBool("version"); v {
		_, _ = fmt.Fprintf(stdout, "graphql-sqlfilter %s (%s)\n", Version, Commit)
		return nil
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	if err := checkConfig(cfg); err != nil {
		return err
	}
	return serve(cfg)
}

// checkConfig logs every validation finding and fails on errors.
func checkConfig(cfg *config.Config) error {
	result := cfg.Validate()
	finding := func(level slog.Level, msg, field, message, hint string) {
		slog.Log(context.Background(), level, msg,
			slog.String("field", field),
			slog.String("message", message),
			slog.String("hint", hint),
		)
	}
	for _, w := range result.Warnings {
		finding(slog.LevelWarn, "configuration warning", w.Field, w.Message, w.Hint)
	}
	for _, e := range result.Errors {
		finding(slog.LevelError, "configuration error", e.Field, e.Message, e.Hint)
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration validation failed: %d error(s)", len(result.Errors))
	}
	return nil
}

func serve(cfg *config.Config) error {
	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return app.Shutdown(ctx)
	}

	if err := app.Init(context.Background()); err != nil {
		return err
	}
	serverErrors, err := app.Start()
	if err != nil {
		_ = shutdown()
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reason, waitErr := app.WaitForStop(stop, serverErrors)
	logger.Info("shutting down server gracefully", slog.String("reason", reason))
	if err := errors.Join(waitErr, shutdown()); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
