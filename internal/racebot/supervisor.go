package racebot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/equinox-racing/racebot/internal/logging"
)

// Runner is a long running background task.
type Runner interface {
	Run(ctx context.Context) error
}

// Supervisor owns the monitoring loop goroutine and reports whether it is
// alive. It can be started once.
type Supervisor struct {
	runner Runner

	mtx     sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	running atomic.Bool
}

func NewSupervisor(runner Runner) *Supervisor {
	return &Supervisor{runner: runner, done: make(chan struct{})}
}

// Start launches the runner on a context derived from ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	logger := logging.FromContext(ctx).Named("supervisor")
	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	go func() {
		defer close(s.done)
		defer s.running.Store(false)

		err := s.run(ctx)

		s.mtx.Lock()
		s.err = err
		s.mtx.Unlock()

		if err != nil {
			logger.Errorf("bot background task died: %v", err)
			return
		}
		logger.Infof("bot background task stopped")
	}()

	logger.Infof("bot background task started")
	return nil
}

func (s *Supervisor) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	return s.runner.Run(ctx)
}

// Stop cancels the runner and waits until it returns or ctx is done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mtx.Lock()
	if !s.started {
		s.mtx.Unlock()
		return ErrNotStarted
	}
	cancel := s.cancel
	s.mtx.Unlock()

	cancel()

	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running is false before Start and once the runner returned or panicked.
func (s *Supervisor) Running() bool {
	return s.running.Load()
}

// Done is closed when the runner returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err is the runner's result once Done is closed.
func (s *Supervisor) Err() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.err
}
