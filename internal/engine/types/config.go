package types

import "time"

// Size constants
const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

const (
	// ChunkSize is the read buffer used by the streaming loop
	ChunkSize = 4 * KB

	// DefaultRateWindow is the number of one-second buckets the rate estimator averages over
	DefaultRateWindow = 10

	// SniffSize is how much of the body the probe asks for to detect a file type
	SniffSize = 512

	ProbeTimeout = 30 * time.Second

	// IncompleteSuffix marks a partial download on disk
	IncompleteSuffix = ".ferry"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// Clock returns the current time. Injected wherever timing matters.
type Clock func() time.Time

// RuntimeConfig holds the tunables loaded from settings.
// Zero values fall back to the package defaults.
type RuntimeConfig struct {
	UserAgent    string
	ChunkSize    int
	RateWindow   int
	SpeedLimit   int64 // bytes per second, 0 = unlimited
	ProbeTimeout time.Duration
}

func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

func (r *RuntimeConfig) GetChunkSize() int {
	if r == nil || r.ChunkSize <= 0 {
		return ChunkSize
	}
	return r.ChunkSize
}

func (r *RuntimeConfig) GetRateWindow() int {
	if r == nil || r.RateWindow <= 0 {
		return DefaultRateWindow
	}
	return r.RateWindow
}

func (r *RuntimeConfig) GetSpeedLimit() int64 {
	if r == nil || r.SpeedLimit < 0 {
		return 0
	}
	return r.SpeedLimit
}

func (r *RuntimeConfig) GetProbeTimeout() time.Duration {
	if r == nil || r.ProbeTimeout <= 0 {
		return ProbeTimeout
	}
	return r.ProbeTimeout
}
