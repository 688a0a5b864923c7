package racebot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func TestSupervisorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	s := NewSupervisor(runnerFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}))

	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Stop(testContext()), ErrNotStarted)

	require.NoError(t, s.Start(testContext()))
	<-started
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(testContext()), ErrAlreadyStarted)

	require.NoError(t, s.Stop(testContext()))
	assert.False(t, s.Running())

	select {
	case <-s.Done():
	default:
		t.Fatal("done must be closed after stop")
	}
}

func TestSupervisorRunnerPanics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewSupervisor(runnerFunc(func(context.Context) error {
		panic("loop crashed")
	}))

	require.NoError(t, s.Start(testContext()))
	<-s.Done()

	assert.False(t, s.Running())
	var panicErr *PanicError
	assert.True(t, errors.As(s.Err(), &panicErr))
}

func TestSupervisorRunnerError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("boom")
	s := NewSupervisor(runnerFunc(func(context.Context) error { return boom }))

	require.NoError(t, s.Start(testContext()))
	<-s.Done()

	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Err(), boom)
	assert.ErrorIs(t, s.Stop(testContext()), boom)
}

func TestSupervisorStopTimeout(t *testing.T) {
	release := make(chan struct{})
	s := NewSupervisor(runnerFunc(func(context.Context) error {
		<-release
		return nil
	}))
	require.NoError(t, s.Start(testContext()))

	ctx, cancel := context.WithTimeout(testContext(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	assert.True(t, s.Running())

	close(release)
	<-s.Done()
	assert.False(t, s.Running())
}

func TestSupervisorFollowsParentContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bot := newTestBot(t, newFakeChain())
	s := NewSupervisor(bot.monitor)

	ctx, cancel := context.WithCancel(testContext())
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Running())

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop with its parent context")
	}
	assert.False(t, s.Running())
	assert.NoError(t, s.Err())
}
