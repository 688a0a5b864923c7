package racebot

import "time"

// CooldownReader is the read side of the cooldown table.
type CooldownReader interface {
	LastAdvance(raceID uint64) (time.Time, bool)
}

// Evaluator holds the decision rules. It does no I/O.
type Evaluator struct {
	Cooldown time.Duration
	Unit     TimeUnit
}

// ShouldAdvance is true for a started, unfinished race that was not advanced
// within the cooldown. A race never advanced counts as advanced at the epoch.
func (e Evaluator) ShouldAdvance(state RaceState, table CooldownReader, now time.Time) bool {
	if !state.Started || state.Finished {
		return false
	}

	last := time.Unix(0, 0)
	if at, ok := table.LastAdvance(state.RaceID); ok {
		last = at
	}

	return now.Sub(last) >= e.Cooldown
}

// CanExecuteQuick is true for a quick race that has not started and whose
// scheduled start time, in the contract's unit, has been reached.
func (e Evaluator) CanExecuteQuick(state RaceState, now time.Time) bool {
	if !state.Quick() || state.Started || state.Finished || state.StartTime == nil {
		return false
	}

	return e.Unit.Timestamp(now) >= *state.StartTime
}

// Decide picks the single action for this cycle. Advance is checked first.
func (e Evaluator) Decide(state RaceState, table CooldownReader, now time.Time) Action {
	switch {
	case e.ShouldAdvance(state, table, now):
		return ActionAdvance
	case e.CanExecuteQuick(state, now):
		return ActionExecuteQuick
	default:
		return ActionNone
	}
}

type Action uint8

const (
	ActionNone Action = iota
	ActionAdvance
	ActionExecuteQuick
)

func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionExecuteQuick:
		return "execute quick"
	default:
		return "none"
	}
}

func (a Action) function() string {
	switch a {
	case ActionAdvance:
		return fnAdvanceRace
	case ActionExecuteQuick:
		return fnExecuteQuickRace
	default:
		return ""
	}
}
