package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	n, ok := UnknownSize.Get()
	assert.False(t, ok)
	assert.Zero(t, n)
	assert.Equal(t, "?", UnknownSize.String())

	n, ok = KnownSize(0).Get()
	assert.True(t, ok, "zero is a valid known size")
	assert.Zero(t, n)

	assert.Equal(t, "1.0 KiB", KnownSize(1024).String())
}

func TestNewProgress_RejectsNegativeTimeLeft(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrProgramming))
	}()
	NewProgress(0, UnknownSize, 0, -time.Second, "")
}

func TestEstimateTimeLeft(t *testing.T) {
	tests := []struct {
		name   string
		value  uint64
		target Size
		rate   uint64
		want   time.Duration
	}{
		{"unknown target", 10, UnknownSize, 5, 0},
		{"zero rate", 10, KnownSize(100), 0, 0},
		{"target reached", 100, KnownSize(100), 5, 0},
		{"value past target", 120, KnownSize(100), 5, 0},
		{"exact", 0, KnownSize(100), 10, 10 * time.Second},
		{"truncated to whole seconds", 0, KnownSize(100), 30, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTimeLeft(tt.value, tt.target, tt.rate))
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{-5 * time.Second, "0 sec"},
		{0, "0 secs"},
		{time.Second, "1 sec"},
		{59 * time.Second, "59 secs"},
		{time.Minute, "1 min"},
		{90 * time.Second, "1 min"},
		{59 * time.Minute, "59 mins"},
		{time.Hour, "1 hour"},
		{26 * time.Hour, "26 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRemaining(tt.in))
		})
	}
}

func TestProgress_WithMessageKeepsNumbers(t *testing.T) {
	p := NewProgress(10, KnownSize(100), 5, 18*time.Second, "Downloading...")
	q := p.WithMessage("Paused")

	assert.Equal(t, "Downloading...", p.Message, "original snapshot must not change")
	assert.Equal(t, "Paused", q.Message)
	assert.Equal(t, p.Value, q.Value)
	assert.Equal(t, p.Target, q.Target)
	assert.Equal(t, p.Rate, q.Rate)
	assert.Equal(t, p.TimeLeft, q.TimeLeft)
}

func TestProgress_Percent(t *testing.T) {
	_, ok := NewProgress(10, UnknownSize, 0, 0, "").Percent()
	assert.False(t, ok)

	pct, ok := NewProgress(25, KnownSize(100), 0, 0, "").Percent()
	assert.True(t, ok)
	assert.InDelta(t, 25.0, pct, 0.001)

	pct, _ = NewProgress(0, KnownSize(0), 0, 0, "").Percent()
	assert.InDelta(t, 100.0, pct, 0.001)
}

func TestProgress_String(t *testing.T) {
	p := NewProgress(2048, KnownSize(4096), 1024, 2*time.Second, "Downloading...")
	assert.Equal(t, "Downloading...: 1.0 KiB/s - 2.0 KiB of 4.0 KiB, 2 secs left", p.String())
}
