// Package progress turns the stream of byte deltas coming out of a transfer
// into immutable snapshots that any number of readers can poll or subscribe to.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/surge-downloader/ferry/internal/engine/rate"
	"github.com/surge-downloader/ferry/internal/engine/types"
)

// Sink is what a transfer reports into
type Sink interface {
	// ReportAbsolute sets value and target, e.g. when a resumed attempt starts
	ReportAbsolute(value uint64, target types.Size, message string)
	// ReportDelta adds bytes that were just written
	ReportDelta(delta uint64)
	// ReportMessage changes the phase label only
	ReportMessage(message string)
}

// Observer is the Sink used by the controller.
//
// Writes are serialised by mu. Readers load the published pointer and never
// take mu, so a slow reader can not stall the transfer loop.
//
// Rate is measured over active time only: the clock fed to the estimator
// runs from an absolute report until the next message report, so the
// seconds spent connecting, paused or finishing do not dilute throughput.
type Observer struct {
	current atomic.Pointer[types.Progress]

	mu        sync.Mutex
	now       types.Clock
	window    int
	estimator *rate.Estimator
	epoch     time.Time     // arbitrary origin of the active clock
	activeFor time.Duration // active time banked before activeAt
	activeAt  time.Time     // zero while frozen

	subMu sync.RWMutex
	subs  map[int]chan types.Progress
	next  int
}

type ObserverOption func(*Observer)

// WithClock injects the time source, mainly for tests
func WithClock(c types.Clock) ObserverOption {
	return func(o *Observer) {
		if c != nil {
			o.now = c
		}
	}
}

// WithWindow sets the rate window in seconds
func WithWindow(seconds int) ObserverOption {
	return func(o *Observer) {
		o.window = seconds
	}
}

func NewObserver(opts ...ObserverOption) *Observer {
	o := &Observer{
		now:    time.Now,
		window: types.DefaultRateWindow,
		subs:   make(map[int]chan types.Progress),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Current returns the latest snapshot, or false if nothing has been reported
// since creation or the last Reset.
func (o *Observer) Current() (types.Progress, bool) {
	p := o.current.Load()
	if p == nil {
		return types.EmptyProgress, false
	}
	return *p, true
}

// Subscribe returns a channel that receives snapshots as they are published.
// The channel holds only the most recent snapshot; a slow subscriber skips
// intermediate ones rather than blocking the writer. Call the returned func
// to unsubscribe; it closes the channel.
func (o *Observer) Subscribe() (<-chan types.Progress, func()) {
	ch := make(chan types.Progress, 1)

	o.subMu.Lock()
	if p, ok := o.Current(); ok {
		ch <- p
	}
	id := o.next
	o.next++
	o.subs[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subs, id)
			close(ch)
			o.subMu.Unlock()
		})
	}
}

func (o *Observer) ReportAbsolute(value uint64, target types.Size, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.activeAt.IsZero() {
		o.activeAt = now
	}
	r := o.rateAt(now)
	o.publish(types.NewProgress(value, target, r, types.EstimateTimeLeft(value, target, r), message))
}

func (o *Observer) ReportDelta(delta uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	if o.activeAt.IsZero() {
		o.activeAt = now
	}
	prev := o.load()

	at := o.activeClock(now)
	e := o.ensureEstimator(at)
	r := e.Sample(delta, at)

	value := prev.Value + delta
	o.publish(types.NewProgress(value, prev.Target, r, types.EstimateTimeLeft(value, prev.Target, r), prev.Message))
}

func (o *Observer) ReportMessage(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.activeAt.IsZero() {
		if d := o.now().Sub(o.activeAt); d > 0 {
			o.activeFor += d
		}
		o.activeAt = time.Time{}
	}
	o.publish(o.load().WithMessage(message))
}

// Reset drops the snapshot and all rate history. Used between logical
// transfers, never on pause.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.estimator = nil
	o.activeFor = 0
	o.activeAt = time.Time{}
	o.current.Store(nil)
}

func (o *Observer) load() types.Progress {
	if p := o.current.Load(); p != nil {
		return *p
	}
	return types.EmptyProgress
}

// activeClock maps wall time onto the active-only timeline
func (o *Observer) activeClock(now time.Time) time.Time {
	d := o.activeFor
	if !o.activeAt.IsZero() {
		if since := now.Sub(o.activeAt); since > 0 {
			d += since
		}
	}
	return o.epoch.Add(d)
}

func (o *Observer) ensureEstimator(at time.Time) *rate.Estimator {
	if o.estimator == nil {
		o.estimator = rate.NewEstimator(o.window, at)
	}
	return o.estimator
}

func (o *Observer) rateAt(now time.Time) uint64 {
	if o.estimator == nil {
		return 0
	}
	return o.estimator.CurrentRate(o.activeClock(now))
}

func (o *Observer) publish(p types.Progress) {
	o.current.Store(&p)

	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subs {
		select {
		case ch <- p:
		default:
			// Drop the stale snapshot and replace it
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- p:
			default:
			}
		}
	}
}
