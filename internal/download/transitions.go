package download

import (
	"github.com/surge-downloader/ferry/internal/engine/types"
)

// State is a session's lifecycle state. Idle is both the initial state and
// where a session lands after finishing, failing or being cancelled.
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

type Trigger int

const (
	TriggerStart Trigger = iota
	TriggerPause
	TriggerCancel
	TriggerCompleted // engine returned Success
	TriggerFailed    // engine returned a genuine failure
)

func (t Trigger) String() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerPause:
		return "pause"
	case TriggerCancel:
		return "cancel"
	case TriggerCompleted:
		return "completed"
	case TriggerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Effect is a side effect the controller runs after a transition, in order
type Effect int

const (
	EffectClearError     Effect = iota
	EffectLaunch                // new cancellation scope, engine run from the resume offset
	EffectSignalPause           // cancel the run; its return banks the bytes
	EffectSignalCancel          // cancel the run; its return drops the bytes
	EffectResetOffset
	EffectResetSink
	EffectDiscard // drop partial data unless a run still owns the destination
	EffectCommit
	EffectReportFinished
	EffectReportError
)

func (e Effect) String() string {
	return [...]string{
		"clear-error", "launch", "signal-pause", "signal-cancel", "reset-offset",
		"reset-sink", "discard", "commit", "report-finished", "report-error",
	}[e]
}

// Decision is the outcome of a table lookup
type Decision struct {
	Next    State
	Effects []Effect
}

type transitionKey struct {
	from    State
	trigger Trigger
}

type transitionRule struct {
	to      State
	effects []Effect
}

var transitions = map[transitionKey]transitionRule{
	{Idle, TriggerStart}: {Running, []Effect{EffectClearError, EffectLaunch}},

	{Running, TriggerPause}:     {Paused, []Effect{EffectSignalPause}},
	{Running, TriggerCancel}:    {Idle, []Effect{EffectSignalCancel}},
	{Running, TriggerCompleted}: {Idle, []Effect{EffectResetOffset, EffectCommit, EffectReportFinished}},
	{Running, TriggerFailed}:    {Idle, []Effect{EffectReportError, EffectResetOffset}},

	{Paused, TriggerStart}:  {Running, []Effect{EffectClearError, EffectLaunch}},
	{Paused, TriggerCancel}: {Idle, []Effect{EffectSignalCancel, EffectResetOffset, EffectResetSink, EffectDiscard}},

	// A second Cancel lands here; it must look exactly like the first
	{Idle, TriggerCancel}: {Idle, []Effect{EffectResetOffset, EffectResetSink, EffectDiscard}},
}

// Decide looks up the transition for trigger in state. It has no side
// effects. Pairs missing from the table are programming errors.
func Decide(from State, trigger Trigger) (Decision, error) {
	rule, ok := transitions[transitionKey{from, trigger}]
	if !ok {
		return Decision{}, &types.TransitionError{From: from.String(), Trigger: trigger.String()}
	}
	return Decision{Next: rule.to, Effects: append([]Effect(nil), rule.effects...)}, nil
}
