package racebot

import (
	"context"
	"errors"
	"time"

	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Outcome is what happened to one race in one cycle.
type Outcome struct {
	RaceID uint64
	Action Action
	TxHash string
	// Skipped is set when the race state could not be read.
	Skipped bool
	Err     error
}

// Monitor polls the contract and dispatches at most one transaction per race
// per cycle.
type Monitor struct {
	reader     *Reader
	evaluator  Evaluator
	dispatcher *Dispatcher
	cooldown   *CooldownTable

	interval       time.Duration
	maxConcurrency int
	now            func() time.Time
}

type MonitorConfig struct {
	Interval       time.Duration
	MaxConcurrency int
}

func NewMonitor(reader *Reader, evaluator Evaluator, dispatcher *Dispatcher, cooldown *CooldownTable, cfg MonitorConfig) *Monitor {
	return &Monitor{
		reader:         reader,
		evaluator:      evaluator,
		dispatcher:     dispatcher,
		cooldown:       cooldown,
		interval:       cfg.Interval,
		maxConcurrency: cfg.MaxConcurrency,
		now:            time.Now,
	}
}

// Run polls until ctx is cancelled. No single cycle can stop it.
func (m *Monitor) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("monitor")
	logger.Infof("starting race monitoring, interval %s", m.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("race monitoring stopped")
			return nil
		case <-timer.C:
		}

		m.cycle(ctx)
		timer.Reset(m.interval)
	}
}

// cycle runs one RunCycle and swallows everything that escapes it.
func (m *Monitor) cycle(ctx context.Context) {
	logger := logging.FromContext(ctx).Named("monitor").With("cycle", uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("monitoring loop: %v", &PanicError{Value: r})
		}
	}()

	outcomes, err := m.RunCycle(ctx)
	if err != nil {
		logger.Errorf("monitoring loop: fetch active races: %v", err)
		return
	}

	logger.Debugf("processed %d active races", len(outcomes))
}

// RunCycle reads the active races and processes each of them concurrently.
// A failure of one race never affects the others; every race gets an
// Outcome. The error is only about listing active races.
func (m *Monitor) RunCycle(ctx context.Context) ([]Outcome, error) {
	logger := logging.FromContext(ctx)

	ids, err := m.reader.ActiveRaces(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(ids))

	var g errgroup.Group
	if m.maxConcurrency > 0 {
		g.SetLimit(m.maxConcurrency)
	}

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			outcomes[i] = m.Process(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		var txErr *TransactionError
		switch {
		case out.Err != nil && out.Skipped:
			logger.Warnw("race skipped", "race_id", out.RaceID, "error", out.Err)
		case errors.As(out.Err, &txErr):
			// already logged by the dispatcher
			logger.Debugw("race processing failed", "race_id", out.RaceID, "action", out.Action.String(), "error", out.Err)
		case out.Err != nil:
			logger.Errorw("race processing failed", "race_id", out.RaceID, "action", out.Action.String(), "error", out.Err)
		}
	}

	return outcomes, nil
}

// Process reads one race and sends the transaction it needs, if any.
// Errors and panics end up in the returned Outcome.
func (m *Monitor) Process(ctx context.Context, raceID uint64) (out Outcome) {
	logger := logging.FromContext(ctx).Named("monitor.process")
	out.RaceID = raceID

	defer func() {
		if r := recover(); r != nil {
			out.Err = &PanicError{Value: r}
		}
	}()

	state, ok, err := m.reader.RaceState(ctx, raceID)
	if !ok {
		out.Skipped = true
		out.Err = err
		return out
	}

	out.Action = m.evaluator.Decide(state, m.cooldown, m.now())

	switch out.Action {
	case ActionAdvance:
		txn, err := m.dispatcher.Advance(ctx, raceID)
		out.TxHash = txn.Hash
		if err != nil {
			out.Err = err
			return out
		}
		logger.Infof("advanced race %d to round %d", raceID, state.CurrentRound+1)
	case ActionExecuteQuick:
		txn, err := m.dispatcher.ExecuteQuick(ctx, raceID)
		out.TxHash = txn.Hash
		if err != nil {
			out.Err = err
			return out
		}
		logger.Infof("executed quick race %d", raceID)
	}

	return out
}
