package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/equinox-racing/racebot/internal/buildinfo"
	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/equinox-racing/racebot/internal/racebot"
	"github.com/equinox-racing/racebot/internal/shutdown"
	"github.com/kelseyhightower/envconfig"
)

var version = "dev"

func main() {
	once := flag.Bool("once", false, "run a single polling cycle and exit")
	flag.Parse()

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

	if err := realMain(ctx, config, *once); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context, config racebot.Config, once bool) error {
	logger := logging.FromContext(ctx).Named("main.realMain")

	bot, err := racebot.New(ctx, config)
	if err != nil {
		return fmt.Errorf("racebot.New: %w", err)
	}

	if !once {
		logger.Infof("equinox race bot starting")
		return bot.Run(ctx)
	}

	outcomes, err := bot.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}

	for _, out := range outcomes {
		status := "ok"
		if out.Err != nil {
			status = out.Err.Error()
		}
		_, _ = fmt.Fprintf(os.Stdout, "race %d\t%s\t%s\t%s\n", out.RaceID, out.Action, out.TxHash, status)
	}

	return nil
}
