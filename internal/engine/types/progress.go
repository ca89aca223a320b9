package types

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Size is an optional byte count. The zero value is unknown.
type Size struct {
	n     uint64
	known bool
}

// UnknownSize is used when the server does not tell us how big the resource is
var UnknownSize = Size{}

func KnownSize(n uint64) Size {
	return Size{n: n, known: true}
}

func (s Size) Get() (uint64, bool) {
	return s.n, s.known
}

func (s Size) Known() bool {
	return s.known
}

func (s Size) String() string {
	if !s.known {
		return "?"
	}
	return humanize.IBytes(s.n)
}

// Progress is a point-in-time snapshot of a transfer.
// A Progress is never modified after construction; updates build a new one.
type Progress struct {
	Value    uint64
	Target   Size
	Rate     uint64 // bytes per second
	TimeLeft time.Duration
	Message  string
}

// EmptyProgress is the snapshot a sink starts from
var EmptyProgress = Progress{}

// NewProgress builds a snapshot. A negative timeLeft is a caller bug and panics.
func NewProgress(value uint64, target Size, rate uint64, timeLeft time.Duration, message string) Progress {
	if timeLeft < 0 {
		panic(fmt.Errorf("%w: negative time left %v", ErrProgramming, timeLeft))
	}
	return Progress{
		Value:    value,
		Target:   target,
		Rate:     rate,
		TimeLeft: timeLeft,
		Message:  message,
	}
}

// EstimateTimeLeft returns (target - value) / rate in whole seconds, or zero
// when the target is unknown, already reached, or nothing is flowing.
func EstimateTimeLeft(value uint64, target Size, rate uint64) time.Duration {
	total, ok := target.Get()
	if !ok || rate == 0 || total <= value {
		return 0
	}
	return time.Duration((total-value)/rate) * time.Second
}

// WithMessage returns a copy of p with only the message replaced
func (p Progress) WithMessage(message string) Progress {
	p.Message = message
	return p
}

// Percent reports completion in [0, 100] when the target is known
func (p Progress) Percent() (float64, bool) {
	total, ok := p.Target.Get()
	if !ok {
		return 0, false
	}
	if total == 0 {
		return 100, true
	}
	pct := float64(p.Value) * 100 / float64(total)
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

func (p Progress) String() string {
	return fmt.Sprintf("%s: %s/s - %s of %s, %s left",
		p.Message,
		humanize.IBytes(p.Rate),
		humanize.IBytes(p.Value),
		p.Target,
		FormatRemaining(p.TimeLeft))
}

// FormatRemaining renders a duration the way the progress line shows it:
// the largest whole unit only, pluralised.
func FormatRemaining(d time.Duration) string {
	switch {
	case d < 0:
		return "0 sec"
	case d < time.Minute:
		return plural(int64(d/time.Second), "sec")
	case d < time.Hour:
		return plural(int64(d/time.Minute), "min")
	default:
		return plural(int64(d/time.Hour), "hour")
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
