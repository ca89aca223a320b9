// Package rate computes throughput over a sliding window of one-second buckets.
package rate

import (
	"time"

	"github.com/surge-downloader/ferry/internal/engine/types"
)

// Estimator averages bytes per second over the last N seconds.
//
// Bucket i holds the bytes seen during second (oldestAt + k) where
// k = (i - oldest) mod N. Only the first intervals buckets starting at
// oldest carry data; every other bucket is zero, so total is their sum.
//
// Not safe for concurrent use.
type Estimator struct {
	buckets   []uint64
	oldest    int
	intervals int
	oldestAt  time.Time
	total     uint64
}

// NewEstimator creates an estimator with the given window in seconds.
// A non-positive window uses types.DefaultRateWindow.
func NewEstimator(window int, now time.Time) *Estimator {
	if window <= 0 {
		window = types.DefaultRateWindow
	}
	e := &Estimator{buckets: make([]uint64, window)}
	e.Reset(now)
	return e
}

// Window returns N
func (e *Estimator) Window() int {
	return len(e.buckets)
}

// Reset discards all history and anchors the window at now
func (e *Estimator) Reset(now time.Time) {
	clear(e.buckets)
	e.oldest = 0
	e.intervals = 1
	e.oldestAt = now
	e.total = 0
}

// Increment adds delta bytes to the bucket for now
func (e *Estimator) Increment(delta uint64, now time.Time) {
	e.advance(now)
	secs := e.secondsSinceOldest(now)
	idx := (e.oldest + secs) % len(e.buckets)
	e.buckets[idx] += delta
	e.total += delta
}

// CurrentRate returns the integer average over the valid buckets
func (e *Estimator) CurrentRate(now time.Time) uint64 {
	e.advance(now)
	return e.total / uint64(e.intervals)
}

// Sample records delta at now and returns the resulting rate
func (e *Estimator) Sample(delta uint64, now time.Time) uint64 {
	e.Increment(delta, now)
	return e.total / uint64(e.intervals)
}

func (e *Estimator) secondsSinceOldest(now time.Time) int {
	d := now.Sub(e.oldestAt)
	if d < 0 {
		return -1
	}
	return int(d / time.Second)
}

// advance slides the window so that now falls inside it
func (e *Estimator) advance(now time.Time) {
	n := len(e.buckets)
	secs := e.secondsSinceOldest(now)

	// Clock went backwards
	if secs < 0 {
		e.Reset(now)
		return
	}

	if secs < n {
		e.intervals = secs + 1
		return
	}

	extra := secs - n + 1
	if extra > n {
		e.Reset(now)
		return
	}

	for i := 0; i < extra; i++ {
		e.total -= e.buckets[e.oldest]
		e.buckets[e.oldest] = 0
		e.oldest = (e.oldest + 1) % n
		e.oldestAt = e.oldestAt.Add(time.Second)
	}
	e.intervals = n
}
