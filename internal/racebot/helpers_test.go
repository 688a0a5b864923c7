package racebot

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/equinox-racing/racebot/internal/aptos"
	"github.com/equinox-racing/racebot/internal/logging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testContractAddress = "0x1b5957414b227d9fedd6015c2b53e648166cc552b6b9747a68c496c5b45086f7"

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// observedContext records every log entry at debug level and above.
func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logging.WithLogger(context.Background(), zap.New(core).Sugar()), logs
}

// testContext carries a no-op logger so test output stays readable.
func testContext() context.Context {
	return logging.WithLogger(context.Background(), zap.NewNop().Sugar())
}

func testContract(t *testing.T) Contract {
	t.Helper()

	c, err := NewContract(testContractAddress, DefaultModuleName)
	require.NoError(t, err)
	return c
}

type raceFixture struct {
	id        uint64
	raceType  uint8
	started   bool
	finished  bool
	round     uint64
	entries   int
	startTime *uint64
}

func u64p(v uint64) *uint64 { return &v }

// tuple renders the fixture the way get_race_state of equinox_v3 returns it.
func (f raceFixture) tuple() []interface{} {
	vec := []interface{}{}
	if f.startTime != nil {
		vec = append(vec, fmt.Sprint(*f.startTime))
	}
	entries := make([]interface{}, f.entries)
	for i := range entries {
		entries[i] = map[string]interface{}{"player": "0x1", "horse": i}
	}

	return []interface{}{
		fmt.Sprint(f.id),
		"0xc0ffee",
		f.raceType,
		f.started,
		f.finished,
		f.round,
		[]interface{}{},
		entries,
		"0",
		"0",
		"0",
		map[string]interface{}{"vec": vec},
		map[string]interface{}{"vec": []interface{}{}},
	}
}

func toRaw(values []interface{}) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// fakeChain serves views from fixtures and records submissions.
type fakeChain struct {
	mtx        sync.Mutex
	active     []uint64
	activeErr  error
	races      map[uint64]raceFixture
	viewErr    map[uint64]error
	submitErr  map[uint64]error
	panicOn    map[uint64]bool
	submitted  []submission
	delay      time.Duration
	inFlight   int
	maxFlight  int
	// ctxErrs and deadlines describe the submission context once the
	// delay is over.
	ctxErrs   []error
	deadlines []bool
}

type submission struct {
	function string
	raceID   uint64
}

func newFakeChain(races ...raceFixture) *fakeChain {
	c := &fakeChain{
		races:     map[uint64]raceFixture{},
		viewErr:   map[uint64]error{},
		submitErr: map[uint64]error{},
		panicOn:   map[uint64]bool{},
	}
	for _, r := range races {
		c.races[r.id] = r
		c.active = append(c.active, r.id)
	}
	return c
}

func (c *fakeChain) View(_ context.Context, req aptos.ViewRequest) ([]json.RawMessage, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	switch req.Function.Name {
	case fnGetActiveRaces:
		if c.activeErr != nil {
			return nil, c.activeErr
		}
		ids := make([]interface{}, len(c.active))
		for i, id := range c.active {
			ids[i] = fmt.Sprint(id)
		}
		return toRaw([]interface{}{ids})
	case fnGetRaceState:
		id, err := strconv.ParseUint(req.Arguments[0].(string), 10, 64)
		if err != nil {
			return nil, err
		}
		if err := c.viewErr[id]; err != nil {
			return nil, err
		}
		r, ok := c.races[id]
		if !ok {
			return nil, errors.New("race not found")
		}
		return toRaw(r.tuple())
	default:
		return nil, fmt.Errorf("unexpected view %s", req.Function)
	}
}

func (c *fakeChain) SubmitAndWait(ctx context.Context, payload aptos.EntryFunction) (aptos.Transaction, error) {
	id := binary.LittleEndian.Uint64(payload.Args[0])

	c.mtx.Lock()
	c.inFlight++
	if c.inFlight > c.maxFlight {
		c.maxFlight = c.inFlight
	}
	c.submitted = append(c.submitted, submission{function: payload.Function.Name, raceID: id})
	err := c.submitErr[id]
	panics := c.panicOn[id]
	delay := c.delay
	c.mtx.Unlock()

	defer func() {
		c.mtx.Lock()
		c.inFlight--
		c.mtx.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	_, hasDeadline := ctx.Deadline()
	c.mtx.Lock()
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	c.deadlines = append(c.deadlines, hasDeadline)
	c.mtx.Unlock()
	if panics {
		panic(fmt.Sprintf("submitter exploded for race %d", id))
	}

	hash := fmt.Sprintf("0x%x", id)
	if err != nil {
		return aptos.Transaction{Hash: hash}, err
	}
	return aptos.Transaction{Type: "user_transaction", Hash: hash, Success: true}, nil
}

func (c *fakeChain) submissions() []submission {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	out := make([]submission, len(c.submitted))
	copy(out, c.submitted)
	return out
}

type testBot struct {
	chain      *fakeChain
	cooldown   *CooldownTable
	dispatcher *Dispatcher
	monitor    *Monitor
}

func newTestBot(t *testing.T, chain *fakeChain) *testBot {
	t.Helper()

	cooldown, err := NewCooldownTable(64, 8*time.Second)
	require.NoError(t, err)

	contract := testContract(t)
	dispatcher := NewDispatcher(contract, chain, cooldown, time.Second)
	dispatcher.now = func() time.Time { return testNow }

	monitor := NewMonitor(
		NewReader(chain, contract, LayoutTuple),
		Evaluator{Cooldown: 8 * time.Second, Unit: Microseconds},
		dispatcher,
		cooldown,
		MonitorConfig{Interval: 10 * time.Millisecond},
	)
	monitor.now = func() time.Time { return testNow }

	return &testBot{chain: chain, cooldown: cooldown, dispatcher: dispatcher, monitor: monitor}
}

type viewerFunc func(function string) ([]json.RawMessage, error)

func (f viewerFunc) View(_ context.Context, req aptos.ViewRequest) ([]json.RawMessage, error) {
	return f(req.Function.Name)
}

type submitterFunc func(ctx context.Context) error

func (f submitterFunc) SubmitAndWait(ctx context.Context, _ aptos.EntryFunction) (aptos.Transaction, error) {
	if err := f(ctx); err != nil {
		return aptos.Transaction{}, err
	}
	return aptos.Transaction{Hash: "0x1", Success: true}, nil
}
