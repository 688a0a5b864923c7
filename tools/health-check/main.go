// Command health-check probes the bot's /health endpoint and exits non-zero
// unless the monitoring loop is running. Meant for container liveness probes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/equinox-racing/racebot/internal/buildinfo"
	"github.com/equinox-racing/racebot/internal/httputil"
	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/equinox-racing/racebot/internal/server"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL     string        `envconfig:"BOT_HEALTH_URL" default:"http://127.0.0.1:8000/health"`
	Timeout time.Duration `envconfig:"BOT_HEALTH_TIMEOUT" default:"5s"`
}

func main() {
	flag.Parse()
	logger := logging.DefaultLogger()

	config := Config{}
	if err := envconfig.Process("", &config); err != nil {
		logger.Fatalf("processing the config: %v", err)
	}

	if err := check(context.Background(), config); err != nil {
		_, _ = fmt.Fprintln(os.Stdout, err)
		os.Exit(1)
	}

	_, _ = fmt.Fprintln(os.Stdout, "ok")
}

func check(ctx context.Context, config Config) error {
	client := httputil.NewClientWithTimeout(httputil.NewUserAgentRoundTripper(buildinfo.UserAgent+"-health", nil), config.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.URL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("client do: %w", err)
	}
	defer resp.Body.Close()

	var health server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("status %d: body unmarshal: %w", resp.StatusCode, err)
	}

	if !health.OK || !health.BotRunning {
		return fmt.Errorf("status %d: bot_running=%v contract=%s", resp.StatusCode, health.BotRunning, health.ContractAddress)
	}

	return nil
}
