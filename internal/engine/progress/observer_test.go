package progress

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/testutil"
)

func newTestObserver() (*Observer, *testutil.ManualClock) {
	clock := testutil.NewManualClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewObserver(WithClock(clock.Now)), clock
}

func TestObserver_EmptyUntilFirstReport(t *testing.T) {
	o, _ := newTestObserver()

	p, ok := o.Current()
	assert.False(t, ok)
	assert.Equal(t, types.EmptyProgress, p)
}

func TestObserver_AbsoluteThenDeltas(t *testing.T) {
	o, clock := newTestObserver()

	o.ReportAbsolute(0, types.KnownSize(1000), "Downloading...")
	p, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(0), p.Value)
	assert.Equal(t, uint64(0), p.Rate)
	assert.Equal(t, "Downloading...", p.Message)

	o.ReportDelta(100)
	clock.Advance(500 * time.Millisecond)
	o.ReportDelta(100)

	p, _ = o.Current()
	assert.Equal(t, uint64(200), p.Value)
	assert.Equal(t, uint64(200), p.Rate)
	assert.Equal(t, 4*time.Second, p.TimeLeft)
	assert.Equal(t, "Downloading...", p.Message, "delta keeps the message")
}

func TestObserver_UnknownTargetHasNoTimeLeft(t *testing.T) {
	o, _ := newTestObserver()

	o.ReportAbsolute(0, types.UnknownSize, "Downloading...")
	o.ReportDelta(4096)

	p, _ := o.Current()
	assert.False(t, p.Target.Known())
	assert.Equal(t, uint64(4096), p.Rate)
	assert.Zero(t, p.TimeLeft)
}

func TestObserver_MessageOnlyKeepsNumbers(t *testing.T) {
	o, clock := newTestObserver()

	o.ReportAbsolute(10, types.KnownSize(100), "Downloading...")
	o.ReportDelta(30)
	clock.Advance(200 * time.Millisecond)
	before, _ := o.Current()

	o.ReportMessage("Paused")
	after, _ := o.Current()

	assert.Equal(t, "Paused", after.Message)
	assert.Equal(t, before.Value, after.Value)
	assert.Equal(t, before.Target, after.Target)
	assert.Equal(t, before.Rate, after.Rate)
	assert.Equal(t, before.TimeLeft, after.TimeLeft)
}

func TestObserver_MessageBeforeAnyReport(t *testing.T) {
	o, _ := newTestObserver()

	o.ReportMessage("Connecting...")
	p, ok := o.Current()
	require.True(t, ok)
	assert.Equal(t, "Connecting...", p.Message)
	assert.Zero(t, p.Value)
	assert.False(t, p.Target.Known())
}

func TestObserver_ResetClearsSnapshotAndRate(t *testing.T) {
	o, clock := newTestObserver()

	o.ReportAbsolute(0, types.KnownSize(1000), "Downloading...")
	o.ReportDelta(900)

	o.Reset()
	_, ok := o.Current()
	assert.False(t, ok)

	clock.Advance(100 * time.Millisecond)
	o.ReportAbsolute(0, types.KnownSize(1000), "Downloading...")
	o.ReportDelta(10)
	p, _ := o.Current()
	assert.Equal(t, uint64(10), p.Value)
	assert.Equal(t, uint64(10), p.Rate, "history from before the reset must be gone")
}

func TestObserver_PausedTimeDoesNotDiluteRate(t *testing.T) {
	o, clock := newTestObserver()

	o.ReportMessage("Connecting...")
	clock.Advance(5 * time.Second)

	o.ReportAbsolute(0, types.KnownSize(1000), "Downloading...")
	o.ReportDelta(100)
	clock.Advance(500 * time.Millisecond)
	o.ReportMessage("Paused")

	// A long pause, well beyond the rate window
	clock.Advance(30 * time.Second)
	o.ReportMessage("Connecting...")
	clock.Advance(2 * time.Second)

	o.ReportAbsolute(100, types.KnownSize(1000), "Downloading...")
	p, _ := o.Current()
	assert.Equal(t, uint64(100), p.Rate, "rate carries over the pause")

	clock.Advance(100 * time.Millisecond)
	o.ReportDelta(100)
	p, _ = o.Current()
	// 0.6s of active time: both deltas land in the same one-second bucket
	assert.Equal(t, uint64(200), p.Rate)
	assert.Equal(t, uint64(200), p.Value)
}

func TestObserver_Subscribe(t *testing.T) {
	o, _ := newTestObserver()

	ch, unsubscribe := o.Subscribe()

	o.ReportAbsolute(0, types.KnownSize(300), "Downloading...")
	o.ReportDelta(100)
	o.ReportDelta(100)

	// Only the latest snapshot is buffered
	p := <-ch
	assert.Equal(t, uint64(200), p.Value)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %v", extra)
	default:
	}

	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic
	o.ReportDelta(100)
	unsubscribe()
}

func TestObserver_SubscribeGetsCurrentSnapshot(t *testing.T) {
	o, _ := newTestObserver()
	o.ReportMessage("Connecting...")

	ch, unsubscribe := o.Subscribe()
	defer unsubscribe()

	select {
	case p := <-ch:
		assert.Equal(t, "Connecting...", p.Message)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestObserver_InvariantsHoldForRandomReports(t *testing.T) {
	o, clock := newTestObserver()
	rng := rand.New(rand.NewSource(7))

	o.ReportAbsolute(0, types.KnownSize(1<<20), "Downloading...")
	prev, _ := o.Current()

	for i := 0; i < 2000; i++ {
		clock.Advance(time.Duration(rng.Intn(1500)) * time.Millisecond)

		switch rng.Intn(3) {
		case 0:
			o.ReportDelta(uint64(rng.Intn(8192)))
			cur, _ := o.Current()
			require.GreaterOrEqual(t, cur.Value, prev.Value, "delta decreased value")
			prev = cur
		case 1:
			o.ReportMessage("phase")
			cur, _ := o.Current()
			require.Equal(t, prev.Value, cur.Value)
			require.Equal(t, prev.Target, cur.Target)
			require.Equal(t, prev.Rate, cur.Rate)
			prev = cur
		case 2:
			o.ReportAbsolute(prev.Value, prev.Target, "Downloading...")
			prev, _ = o.Current()
		}

		require.GreaterOrEqual(t, prev.TimeLeft, time.Duration(0))
	}
}

func TestObserver_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	o := NewObserver()
	o.ReportAbsolute(0, types.KnownSize(1<<30), "Downloading...")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, ok := o.Current()
				if ok && p.Value%64 != 0 {
					t.Errorf("torn snapshot: %d", p.Value)
					return
				}
			}
		}()
	}

	for i := 0; i < 10000; i++ {
		o.ReportDelta(64)
	}
	close(stop)
	wg.Wait()

	p, _ := o.Current()
	assert.Equal(t, uint64(640000), p.Value)
}
