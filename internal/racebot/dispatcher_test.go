package racebot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherAdvanceRecordsCooldown(t *testing.T) {
	t.Parallel()

	bot := newTestBot(t, newFakeChain())

	txn, err := bot.dispatcher.Advance(testContext(), 101)
	require.NoError(t, err)
	assert.Equal(t, "0x65", txn.Hash)

	at, ok := bot.cooldown.LastAdvance(101)
	require.True(t, ok)
	assert.Equal(t, testNow, at)
	assert.Equal(t, []submission{{function: fnAdvanceRace, raceID: 101}}, bot.chain.submissions())
}

func TestDispatcherLogsExplorerLink(t *testing.T) {
	t.Parallel()

	bot := newTestBot(t, newFakeChain())
	ctx, logs := observedContext()

	_, err := bot.dispatcher.ExecuteQuick(ctx, 202)
	require.NoError(t, err)

	committed := logs.FilterMessage("transaction committed").All()
	require.Len(t, committed, 1)
	assert.Equal(t, "https://explorer.aptoslabs.com/txn/0xca?network=testnet", committed[0].ContextMap()["explorer"])
}

func TestDispatcherAdvanceFailureLeavesCooldown(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.submitErr[7] = errors.New("SEQUENCE_NUMBER_TOO_OLD")
	bot := newTestBot(t, chain)

	_, err := bot.dispatcher.Advance(testContext(), 7)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, ActionAdvance, txErr.Action)
	assert.Equal(t, uint64(7), txErr.RaceID)
	assert.Equal(t, "0x7", txErr.Hash)

	_, ok := bot.cooldown.LastAdvance(7)
	assert.False(t, ok)
	assert.Equal(t, 0, bot.cooldown.Len())
}

func TestDispatcherExecuteQuickDoesNotTouchCooldown(t *testing.T) {
	t.Parallel()

	bot := newTestBot(t, newFakeChain())

	_, err := bot.dispatcher.ExecuteQuick(testContext(), 202)
	require.NoError(t, err)

	assert.Equal(t, 0, bot.cooldown.Len())
	assert.Equal(t, []submission{{function: fnExecuteQuickRace, raceID: 202}}, bot.chain.submissions())
}

func TestDispatcherSerializesSubmissions(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.delay = 5 * time.Millisecond
	bot := newTestBot(t, chain)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if id%2 == 0 {
				_, _ = bot.dispatcher.Advance(testContext(), id)
				return
			}
			_, _ = bot.dispatcher.ExecuteQuick(testContext(), id)
		}(uint64(i))
	}
	wg.Wait()

	assert.Len(t, chain.submissions(), 10)
	chain.mtx.Lock()
	defer chain.mtx.Unlock()
	assert.Equal(t, 1, chain.maxFlight)
}

func TestDispatcherCancelledBeforeSubmit(t *testing.T) {
	t.Parallel()

	bot := newTestBot(t, newFakeChain())

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := bot.dispatcher.Advance(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, bot.chain.submissions())
}

func TestDispatcherInFlightSurvivesCancel(t *testing.T) {
	t.Parallel()

	chain := newFakeChain()
	chain.delay = 50 * time.Millisecond
	bot := newTestBot(t, chain)

	ctx, cancel := context.WithCancel(testContext())
	errCh := make(chan error, 1)
	go func() {
		_, err := bot.dispatcher.Advance(ctx, 3)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(chain.submissions()) == 1 }, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, <-errCh)
	_, ok := bot.cooldown.LastAdvance(3)
	assert.True(t, ok)

	chain.mtx.Lock()
	defer chain.mtx.Unlock()
	require.Len(t, chain.ctxErrs, 1)
	assert.NoError(t, chain.ctxErrs[0], "submission context must not follow shutdown")
	assert.True(t, chain.deadlines[0])
}

func TestDispatcherTimeout(t *testing.T) {
	t.Parallel()

	cooldown, err := NewCooldownTable(8, 8*time.Second)
	require.NoError(t, err)

	blocking := submitterFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := NewDispatcher(testContract(t), blocking, cooldown, 20*time.Millisecond)

	start := time.Now()
	_, err = d.Advance(testContext(), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, cooldown.Len())

	// the slot was released
	d.submitter = submitterFunc(func(context.Context) error { return nil })
	_, err = d.Advance(testContext(), 1)
	assert.NoError(t, err)
}
