// Package download drives transfer sessions: a Controller runs one target
// through Idle, Running and Paused, and a Manager keeps many of them.
package download

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/surge-downloader/ferry/internal/engine/progress"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/utils"
)

// Phase labels reported by the controller
const (
	MsgPaused   = "Paused"
	MsgFinished = "Finished"
	MsgCanceled = "Canceled"
)

// Engine performs one transfer attempt. single.Downloader implements it.
type Engine interface {
	Transfer(ctx context.Context, uri string, dst io.Writer, sink progress.Sink, resumeOffset uint64) types.Result
}

type stopReason int

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
)

// run is one engine invocation and its cancellation scope
type run struct {
	cancel  context.CancelFunc
	done    chan struct{}
	reason  stopReason // guarded by Controller.mu
	settled bool       // guarded by Controller.mu
}

// Settlement describes a session right after a run returned
type Settlement struct {
	State        State
	ResumeOffset uint64
	Result       types.Result
	Err          error
}

// StoredStatus is the session-store status for the settlement, or "" when
// a newer run already took over
func (st Settlement) StoredStatus() string {
	switch {
	case st.State == Running:
		return ""
	case st.State == Paused:
		return state.StatusPaused
	case st.Err != nil:
		return state.StatusFailed
	case st.Result.IsSuccess():
		return state.StatusCompleted
	default:
		return state.StatusCancelled
	}
}

type Controller struct {
	engine    Engine
	dest      Destination
	uri       string
	observer  *progress.Observer
	base      context.Context
	onSettled func(Settlement)
	log       zerolog.Logger

	mu     sync.Mutex
	state  State
	offset uint64
	err    error
	active *run // latest run, possibly settled
}

type ControllerOption func(*Controller)

func WithObserver(o *progress.Observer) ControllerOption {
	return func(c *Controller) { c.observer = o }
}

// WithResumeOffset seeds the offset a previous process persisted
func WithResumeOffset(offset uint64) ControllerOption {
	return func(c *Controller) { c.offset = offset }
}

// WithBaseContext parents every run's cancellation scope. Cancelling it
// stops the current run the same way Pause does.
func WithBaseContext(ctx context.Context) ControllerOption {
	return func(c *Controller) { c.base = ctx }
}

func WithOnSettled(fn func(Settlement)) ControllerOption {
	return func(c *Controller) { c.onSettled = fn }
}

func WithLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

func NewController(engine Engine, dest Destination, uri string, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine: engine,
		dest:   dest,
		uri:    uri,
		base:   context.Background(),
		log:    utils.Logger("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observer == nil {
		c.observer = progress.NewObserver()
	}
	c.log = c.log.With().Str("url", uri).Logger()
	return c
}

// Start launches the engine from the resume offset
func (c *Controller) Start() error { return c.fire(TriggerStart) }

// Pause stops the running transfer and keeps its bytes for the next Start
func (c *Controller) Pause() error { return c.fire(TriggerPause) }

// Cancel stops the transfer and forgets its progress. Cancelling an idle
// session is allowed and changes nothing further.
func (c *Controller) Cancel() error { return c.fire(TriggerCancel) }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) ResumeOffset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Err is the error from the last failed run, cleared on Start
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) Observer() *progress.Observer {
	return c.observer
}

func (c *Controller) URL() string {
	return c.uri
}

// Wait blocks until no run is in flight or ctx is done
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		r := c.active
		c.mu.Unlock()

		if r == nil {
			return nil
		}
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		c.mu.Lock()
		same := c.active == r
		c.mu.Unlock()
		if same {
			return nil
		}
	}
}

func (c *Controller) fire(trigger Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(trigger, types.Result{})
}

// apply moves to the next state and runs the effects. c.mu must be held.
func (c *Controller) apply(trigger Trigger, res types.Result) error {
	dec, err := Decide(c.state, trigger)
	if err != nil {
		c.log.Error().Err(err).Msg("rejected trigger")
		return err
	}

	c.log.Debug().Stringer("from", c.state).Stringer("to", dec.Next).Stringer("trigger", trigger).Msg("transition")
	c.state = dec.Next

	for _, e := range dec.Effects {
		if err := c.perform(e, res); err != nil {
			// Only a failed commit gets here; the session is already Idle
			c.err = err
			c.observer.ReportMessage(err.Error())
			c.log.Error().Err(err).Stringer("effect", e).Msg("effect failed")
			break
		}
	}
	return nil
}

func (c *Controller) perform(e Effect, res types.Result) error {
	switch e {
	case EffectClearError:
		c.err = nil
	case EffectLaunch:
		c.launch()
	case EffectSignalPause:
		c.signal(stopPause)
	case EffectSignalCancel:
		c.signal(stopCancel)
	case EffectResetOffset:
		c.offset = 0
	case EffectResetSink:
		c.resetSink()
	case EffectDiscard:
		if c.active == nil || c.active.settled {
			c.discard()
		}
	case EffectCommit:
		if err := c.dest.Commit(); err != nil {
			return types.NewIOError("commit", err)
		}
	case EffectReportFinished:
		c.observer.ReportMessage(MsgFinished)
	case EffectReportError:
		c.err = res.Err
		if res.Err != nil {
			c.observer.ReportMessage(res.Err.Error())
		}
	}
	return nil
}

func (c *Controller) launch() {
	prev := c.active
	ctx, cancel := context.WithCancel(c.base)
	r := &run{cancel: cancel, done: make(chan struct{})}
	c.active = r
	go c.execute(ctx, r, prev)
}

// signal cancels the active run and tells its return handler why
func (c *Controller) signal(reason stopReason) {
	r := c.active
	if r == nil || r.settled {
		return
	}
	r.reason = reason
	r.cancel()
}

func (c *Controller) resetSink() {
	c.observer.Reset()
	c.observer.ReportMessage(MsgCanceled)
}

func (c *Controller) discard() {
	if err := c.dest.Discard(); err != nil {
		c.log.Warn().Err(err).Msg("failed to discard partial data")
	}
}

func (c *Controller) execute(ctx context.Context, r *run, prev *run) {
	defer close(r.done)
	defer r.cancel()

	// The previous run must hand back the destination and bank its bytes
	// before the offset is read
	if prev != nil {
		<-prev.done
	}

	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	res := c.attempt(ctx, offset)
	c.settle(r, res)
}

func (c *Controller) attempt(ctx context.Context, offset uint64) types.Result {
	w, effective, err := c.dest.Open(offset)
	if err != nil {
		return types.Failure(0, types.NewIOError("open", err))
	}
	if effective != offset {
		c.log.Warn().Uint64("offset", offset).Uint64("effective", effective).Msg("partial data did not match, restarting")
		c.mu.Lock()
		c.offset = effective
		c.mu.Unlock()
	}

	res := c.engine.Transfer(ctx, c.uri, w, c.observer, effective)
	if err := w.Close(); err != nil && res.IsSuccess() {
		res = types.Failure(res.Bytes, types.NewIOError("close", err))
	}
	return res
}

// settle handles a run's return according to why it stopped
func (c *Controller) settle(r *run, res types.Result) {
	c.mu.Lock()
	r.settled = true

	log := c.log.With().Stringer("outcome", res.Outcome).Uint64("bytes", res.Bytes).Logger()

	switch {
	case r.reason == stopPause:
		c.offset += res.Bytes
		if c.state == Paused && c.active == r {
			c.observer.ReportMessage(MsgPaused)
		}
		log.Debug().Uint64("offset", c.offset).Msg("paused")
	case r.reason == stopCancel:
		c.offset = 0
		c.resetSink()
		c.discard()
		log.Debug().Msg("cancelled")
	case res.IsSuccess():
		c.offset += res.Bytes
		_ = c.apply(TriggerCompleted, res)
	case res.IsFailure():
		c.offset += res.Bytes
		log.Warn().Err(res.Err).Msg("transfer failed")
		_ = c.apply(TriggerFailed, res)
	default:
		// The base context went away: keep what we have, as a pause would
		c.offset += res.Bytes
		_ = c.apply(TriggerPause, res)
		c.observer.ReportMessage(MsgPaused)
		log.Debug().Uint64("offset", c.offset).Msg("stopped by shutdown")
	}

	s := Settlement{State: c.state, ResumeOffset: c.offset, Result: res, Err: c.err}
	cb := c.onSettled
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}
