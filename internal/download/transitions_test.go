package download

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/ferry/internal/engine/types"
)

func TestDecide_EveryPairIsDefinedOrRejected(t *testing.T) {
	want := map[transitionKey]State{
		{Idle, TriggerStart}:        Running,
		{Idle, TriggerCancel}:       Idle,
		{Running, TriggerPause}:     Paused,
		{Running, TriggerCancel}:    Idle,
		{Running, TriggerCompleted}: Idle,
		{Running, TriggerFailed}:    Idle,
		{Paused, TriggerStart}:      Running,
		{Paused, TriggerCancel}:     Idle,
	}

	states := []State{Idle, Running, Paused}
	triggers := []Trigger{TriggerStart, TriggerPause, TriggerCancel, TriggerCompleted, TriggerFailed}

	for _, s := range states {
		for _, tr := range triggers {
			t.Run(s.String()+"/"+tr.String(), func(t *testing.T) {
				dec, err := Decide(s, tr)
				next, ok := want[transitionKey{s, tr}]
				if !ok {
					require.Error(t, err)
					var te *types.TransitionError
					assert.True(t, errors.As(err, &te))
					assert.True(t, errors.Is(err, types.ErrInvalidTransition))
					assert.True(t, errors.Is(err, types.ErrProgramming))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, next, dec.Next)
				assert.NotEmpty(t, dec.Effects)
			})
		}
	}
}

func TestDecide_Effects(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		effects []Effect
	}{
		{Idle, TriggerStart, []Effect{EffectClearError, EffectLaunch}},
		{Running, TriggerPause, []Effect{EffectSignalPause}},
		{Running, TriggerCancel, []Effect{EffectSignalCancel}},
		{Running, TriggerCompleted, []Effect{EffectResetOffset, EffectCommit, EffectReportFinished}},
		{Running, TriggerFailed, []Effect{EffectReportError, EffectResetOffset}},
		{Paused, TriggerStart, []Effect{EffectClearError, EffectLaunch}},
		{Paused, TriggerCancel, []Effect{EffectSignalCancel, EffectResetOffset, EffectResetSink, EffectDiscard}},
	}
	for _, tt := range tests {
		dec, err := Decide(tt.from, tt.trigger)
		require.NoError(t, err)
		assert.Equal(t, tt.effects, dec.Effects, "%s on %s", tt.from, tt.trigger)
	}
}

func TestDecide_ResultDoesNotAliasTable(t *testing.T) {
	dec, err := Decide(Idle, TriggerStart)
	require.NoError(t, err)
	dec.Effects[0] = EffectDiscard

	again, err := Decide(Idle, TriggerStart)
	require.NoError(t, err)
	assert.Equal(t, EffectClearError, again.Effects[0])
}

func TestTransitionError_Message(t *testing.T) {
	_, err := Decide(Idle, TriggerPause)
	require.Error(t, err)
	assert.Equal(t, "idle has no transition on pause", err.Error())
}

func TestSettlement_StoredStatus(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		st   Settlement
		want string
	}{
		{"superseded", Settlement{State: Running}, ""},
		{"paused", Settlement{State: Paused, ResumeOffset: 10}, "paused"},
		{"failed", Settlement{State: Idle, Err: boom, Result: types.Failure(3, boom)}, "error"},
		{"completed", Settlement{State: Idle, Result: types.Success(10)}, "completed"},
		{"cancelled", Settlement{State: Idle, Result: types.Cancelled(4)}, "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st.StoredStatus())
		})
	}
}
