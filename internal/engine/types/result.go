package types

// Outcome is how a single transfer attempt ended
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned by every transfer attempt.
// Bytes counts only what this attempt wrote; the caller adds it to its offset.
type Result struct {
	Outcome Outcome
	Bytes   uint64
	Err     error
}

func Success(bytes uint64) Result {
	return Result{Outcome: OutcomeSuccess, Bytes: bytes}
}

func Cancelled(bytes uint64) Result {
	return Result{Outcome: OutcomeCancelled, Bytes: bytes, Err: ErrCancelled}
}

// Failure builds a failed result. A cancellation cause yields Cancelled instead.
func Failure(bytes uint64, err error) Result {
	if IsCancelled(err) {
		return Cancelled(bytes)
	}
	return Result{Outcome: OutcomeFailed, Bytes: bytes, Err: err}
}

func (r Result) IsSuccess() bool   { return r.Outcome == OutcomeSuccess }
func (r Result) IsCancelled() bool { return r.Outcome == OutcomeCancelled }
func (r Result) IsFailure() bool   { return r.Outcome == OutcomeFailed }
