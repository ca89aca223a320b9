package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeConfig_Getters(t *testing.T) {
	t.Run("nil config returns defaults", func(t *testing.T) {
		var r *RuntimeConfig

		assert.Equal(t, DefaultUserAgent, r.GetUserAgent())
		assert.Equal(t, ChunkSize, r.GetChunkSize())
		assert.Equal(t, DefaultRateWindow, r.GetRateWindow())
		assert.Equal(t, int64(0), r.GetSpeedLimit())
		assert.Equal(t, ProbeTimeout, r.GetProbeTimeout())
	})

	t.Run("zero values return defaults", func(t *testing.T) {
		r := &RuntimeConfig{}

		assert.Equal(t, ChunkSize, r.GetChunkSize())
		assert.Equal(t, DefaultRateWindow, r.GetRateWindow())
		assert.Equal(t, ProbeTimeout, r.GetProbeTimeout())
	})

	t.Run("negative values are clamped", func(t *testing.T) {
		r := &RuntimeConfig{ChunkSize: -1, RateWindow: -5, SpeedLimit: -100}

		assert.Equal(t, ChunkSize, r.GetChunkSize())
		assert.Equal(t, DefaultRateWindow, r.GetRateWindow())
		assert.Equal(t, int64(0), r.GetSpeedLimit())
	})

	t.Run("custom values are returned", func(t *testing.T) {
		r := &RuntimeConfig{
			UserAgent:    "CustomAgent/1.0",
			ChunkSize:    100,
			RateWindow:   5,
			SpeedLimit:   2 * MB,
			ProbeTimeout: 5 * time.Second,
		}

		assert.Equal(t, "CustomAgent/1.0", r.GetUserAgent())
		assert.Equal(t, 100, r.GetChunkSize())
		assert.Equal(t, 5, r.GetRateWindow())
		assert.Equal(t, int64(2*MB), r.GetSpeedLimit())
		assert.Equal(t, 5*time.Second, r.GetProbeTimeout())
	})
}
