package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/equinox-racing/racebot/internal/buildinfo"
	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/equinox-racing/racebot/internal/racebot"
	"github.com/equinox-racing/racebot/internal/server"
	"github.com/equinox-racing/racebot/internal/shutdown"
	"github.com/kelseyhightower/envconfig"
)

const stopTimeout = 45 * time.Second

var version = "dev"

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(os.Stdout, buildinfo.GreetingCLI, buildinfo.ProjectName, version, buildinfo.GithubURL)

	ctx, done := shutdown.New()
	defer done()

	config := racebot.Config{}
	if err := envconfig.Process("", &config); err != nil {
		logging.DefaultLogger().Fatalf("processing the config: %v", err)
	}

	logger := logging.NewLogger(config.Debug)
	ctx = logging.WithLogger(ctx, logger)

	if err := realMain(ctx, config); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context, config racebot.Config) error {
	logger := logging.FromContext(ctx).Named("main.realMain")

	bot, err := racebot.New(ctx, config)
	if err != nil {
		return fmt.Errorf("racebot.New: %w", err)
	}

	srv, err := server.New(config.Port)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	supervisor := racebot.NewSupervisor(bot)

	mux := http.NewServeMux()
	mux.Handle("/health", server.HandleHealth(ctx, supervisor, bot.Contract.Module.Address.String()))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ServeHTTP(ctx, &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}()
	logger.Infof("health endpoint listening on %s", srv.Addr())

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("supervisor.Start: %w", err)
	}

	// The loop dying on its own leaves the health endpoint up and reporting
	// bot_running=false until the process is told to stop.
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("srv.ServeHTTP: %w", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := supervisor.Stop(stopCtx); err != nil {
		return fmt.Errorf("supervisor.Stop: %w", err)
	}

	logger.Infof("bot background task cancelled")
	return nil
}
