package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/equinox-racing/racebot/internal/logging"
)

// Probe reports whether the background monitoring loop is alive.
type Probe interface {
	Running() bool
}

type HealthResponse struct {
	OK              bool   `json:"ok"`
	BotRunning      bool   `json:"bot_running"`
	ContractAddress string `json:"contract_address"`
}

// HandleHealth answers 200 while the probe reports a running loop and 503
// otherwise. The body is the same in both cases.
func HandleHealth(ctx context.Context, probe Probe, contractAddress string) http.Handler {
	logger := logging.FromContext(ctx).Named("server.health")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		running := probe.Running()
		status := http.StatusOK
		if !running {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(HealthResponse{
			OK:              true,
			BotRunning:      running,
			ContractAddress: contractAddress,
		}); err != nil {
			logger.Errorf("encode health response: %v", err)
		}
	})
}
