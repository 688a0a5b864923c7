package racebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/equinox-racing/racebot/internal/aptos"
)

const (
	fnGetActiveRaces   = "get_active_races"
	fnGetRaceState     = "get_race_state"
	fnAdvanceRace      = "advance_race"
	fnExecuteQuickRace = "execute_quick_race"

	// get_race_state of equinox_v3 returns (id, creator, race_type,
	// race_started, race_finished, current_round, horses, entries, track,
	// total_bet_pool, entry_fee_pool, start_time, betting_end_time).
	raceStateArity = 13

	RaceTypeQuick uint8 = 1
)

// RaceState is a snapshot of one race, rebuilt on every poll.
type RaceState struct {
	RaceID       uint64
	Started      bool
	Finished     bool
	RaceType     uint8
	CurrentRound uint64
	EntriesCount int
	// StartTime is in the contract's TimeUnit, nil until scheduled.
	StartTime *uint64
	Creator   string
}

func (s RaceState) Quick() bool {
	return s.RaceType == RaceTypeQuick
}

// Contract names the functions of the deployed race module.
type Contract struct {
	Module aptos.ModuleID
}

func NewContract(address, module string) (Contract, error) {
	addr, err := aptos.ParseAddress(address)
	if err != nil {
		return Contract{}, fmt.Errorf("contract address: %w", err)
	}

	return Contract{Module: aptos.ModuleID{Address: addr, Name: module}}, nil
}

func (c Contract) Function(name string) aptos.FunctionID {
	return aptos.FunctionID{Module: c.Module, Name: name}
}

// Viewer runs read only contract calls.
type Viewer interface {
	View(ctx context.Context, req aptos.ViewRequest) ([]json.RawMessage, error)
}

// Reader lists active races and decodes their state. It has no side effects.
type Reader struct {
	viewer   Viewer
	contract Contract
	layout   StateLayout
}

func NewReader(viewer Viewer, contract Contract, layout StateLayout) *Reader {
	if layout == "" {
		layout = LayoutTuple
	}

	return &Reader{viewer: viewer, contract: contract, layout: layout}
}

// ActiveRaces returns the ids reported by get_active_races. On failure the
// slice is empty and the error is a *QueryError or *DecodeError.
func (r *Reader) ActiveRaces(ctx context.Context) ([]uint64, error) {
	fn := r.contract.Function(fnGetActiveRaces)

	resp, err := r.viewer.View(ctx, aptos.ViewRequest{Function: fn})
	if err != nil {
		return []uint64{}, &QueryError{Function: fnGetActiveRaces, Err: err}
	}
	if len(resp) == 0 {
		return []uint64{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp[0], &raw); err != nil {
		return []uint64{}, &DecodeError{Function: fnGetActiveRaces, Reason: fmt.Sprintf("race id list: %v", err)}
	}

	ids := make([]uint64, 0, len(raw))
	for i, v := range raw {
		id, err := decodeU64(v)
		if err != nil {
			return []uint64{}, &DecodeError{Function: fnGetActiveRaces, Reason: fmt.Sprintf("race id %d: %v", i, err)}
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// RaceState fetches one race. ok is false when the race should be skipped
// this cycle; err then says why, for the log.
func (r *Reader) RaceState(ctx context.Context, raceID uint64) (RaceState, bool, error) {
	fn := r.contract.Function(fnGetRaceState)

	resp, err := r.viewer.View(ctx, aptos.ViewRequest{
		Function:  fn,
		Arguments: []interface{}{aptos.U64Arg(raceID)},
	})
	if err != nil {
		return RaceState{}, false, &QueryError{Function: fnGetRaceState, Err: err}
	}

	var state RaceState
	if r.layout == LayoutObject {
		state, err = DecodeRaceObject(raceID, resp)
	} else {
		state, err = DecodeRaceTuple(raceID, resp)
	}
	if err != nil {
		return RaceState{}, false, err
	}

	return state, true, nil
}

// DecodeRaceTuple decodes the positional equinox_v3 response. Anything but
// exactly raceStateArity well formed fields is a *DecodeError.
func DecodeRaceTuple(raceID uint64, resp []json.RawMessage) (RaceState, error) {
	fail := func(format string, args ...interface{}) (RaceState, error) {
		return RaceState{}, &DecodeError{Function: fnGetRaceState, Reason: fmt.Sprintf(format, args...)}
	}

	if len(resp) != raceStateArity {
		return fail("race %d: got %d fields, want %d", raceID, len(resp), raceStateArity)
	}

	id, err := decodeU64(resp[0])
	if err != nil {
		return fail("race %d id: %v", raceID, err)
	}
	if id != raceID {
		return fail("asked for race %d, got race %d", raceID, id)
	}

	var creator *string
	if err := json.Unmarshal(resp[1], &creator); err != nil {
		return fail("race %d creator: %v", raceID, err)
	}

	raceType, err := decodeU64(resp[2])
	if err != nil || raceType > 0xff {
		return fail("race %d race_type: %s", raceID, resp[2])
	}

	var started, finished bool
	if err := decodeBool(resp[3], &started); err != nil {
		return fail("race %d race_started: %v", raceID, err)
	}
	if err := decodeBool(resp[4], &finished); err != nil {
		return fail("race %d race_finished: %v", raceID, err)
	}

	round, err := decodeU64(resp[5])
	if err != nil {
		return fail("race %d current_round: %v", raceID, err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(resp[7], &entries); err != nil {
		return fail("race %d entries: %v", raceID, err)
	}

	startTime, err := decodeOptionU64(resp[11])
	if err != nil {
		return fail("race %d start_time: %v", raceID, err)
	}

	state := RaceState{
		RaceID:       raceID,
		Started:      started,
		Finished:     finished,
		RaceType:     uint8(raceType),
		CurrentRound: round,
		EntriesCount: len(entries),
		StartTime:    startTime,
	}
	if creator != nil {
		state.Creator = *creator
	}

	return state, nil
}

// raceObject is the flat struct returned by the legacy module.
type raceObject struct {
	RaceID       json.RawMessage   `json:"race_id"`
	Creator      *string           `json:"creator"`
	RaceType     json.RawMessage   `json:"race_type"`
	RaceStarted  *bool             `json:"race_started"`
	RaceFinished *bool             `json:"race_finished"`
	CurrentRound json.RawMessage   `json:"current_round"`
	Entries      []json.RawMessage `json:"entries"`
	StartTime    json.RawMessage   `json:"start_time"`
}

// DecodeRaceObject decodes the legacy single struct response.
func DecodeRaceObject(raceID uint64, resp []json.RawMessage) (RaceState, error) {
	fail := func(format string, args ...interface{}) (RaceState, error) {
		return RaceState{}, &DecodeError{Function: fnGetRaceState, Reason: fmt.Sprintf(format, args...)}
	}

	if len(resp) != 1 {
		return fail("race %d: got %d values, want 1 struct", raceID, len(resp))
	}

	var obj raceObject
	if err := json.Unmarshal(resp[0], &obj); err != nil {
		return fail("race %d: %v", raceID, err)
	}
	if obj.RaceStarted == nil || obj.RaceFinished == nil || obj.RaceType == nil || obj.CurrentRound == nil || obj.StartTime == nil {
		return fail("race %d: missing fields", raceID)
	}

	if obj.RaceID != nil {
		id, err := decodeU64(obj.RaceID)
		if err != nil || id != raceID {
			return fail("asked for race %d, got %s", raceID, obj.RaceID)
		}
	}

	raceType, err := decodeU64(obj.RaceType)
	if err != nil || raceType > 0xff {
		return fail("race %d race_type: %s", raceID, obj.RaceType)
	}

	round, err := decodeU64(obj.CurrentRound)
	if err != nil {
		return fail("race %d current_round: %v", raceID, err)
	}

	startTime, err := decodeOptionU64(obj.StartTime)
	if err != nil {
		return fail("race %d start_time: %v", raceID, err)
	}

	state := RaceState{
		RaceID:       raceID,
		Started:      *obj.RaceStarted,
		Finished:     *obj.RaceFinished,
		RaceType:     uint8(raceType),
		CurrentRound: round,
		EntriesCount: len(obj.Entries),
		StartTime:    startTime,
	}
	if obj.Creator != nil {
		state.Creator = *obj.Creator
	}

	return state, nil
}

// decodeU64 accepts the string form the node uses for u64 and wider, and the
// plain number form used for u8 to u32.
func decodeU64(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseUint(s, 10, 64)
	}

	return strconv.ParseUint(string(raw), 10, 64)
}

func decodeBool(raw json.RawMessage, dst *bool) error {
	var v *bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("null")
	}
	*dst = *v
	return nil
}

// decodeOptionU64 decodes Move's Option<u64>: {"vec": []} is none and
// {"vec": ["n"]} is some(n). Other shapes are rejected.
func decodeOptionU64(raw json.RawMessage) (*uint64, error) {
	var opt struct {
		Vec *[]json.RawMessage `json:"vec"`
	}
	if err := json.Unmarshal(raw, &opt); err != nil {
		return nil, fmt.Errorf("option: %v", err)
	}
	if opt.Vec == nil {
		return nil, fmt.Errorf("option: missing vec in %s", raw)
	}

	switch len(*opt.Vec) {
	case 0:
		return nil, nil
	case 1:
		v, err := decodeU64((*opt.Vec)[0])
		if err != nil {
			return nil, fmt.Errorf("option value: %v", err)
		}
		return &v, nil
	default:
		return nil, fmt.Errorf("option: %d elements", len(*opt.Vec))
	}
}
