package domain

// OutcomeState enumerates the three tiers a soft-failing operation can end in.
type OutcomeState int

const (
	// OutcomeOK carries a usable value.
	OutcomeOK OutcomeState = iota
	// OutcomeDegraded means an optional signal is missing; callers continue without it.
	OutcomeDegraded
	// OutcomeFatal means the system cannot serve the request.
	OutcomeFatal
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeOK:
		return "ok"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is Ok(value), Degraded(reason) or Fatal(err).
type Outcome[T any] struct {
	value  T
	state  OutcomeState
	reason string
	err    error
}

// Ok wraps a usable value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{value: v, state: OutcomeOK}
}

// Degraded records why a value is unavailable. cause may be nil.
func Degraded[T any](reason string, cause error) Outcome[T] {
	return Outcome[T]{state: OutcomeDegraded, reason: reason, err: cause}
}

// Fatal wraps a hard failure.
func Fatal[T any](err error) Outcome[T] {
	return Outcome[T]{state: OutcomeFatal, reason: err.Error(), err: err}
}

// State returns the outcome tier.
func (o Outcome[T]) State() OutcomeState { return o.state }

// IsOK reports whether a value is available.
func (o Outcome[T]) IsOK() bool { return o.state == OutcomeOK }

// Value returns the value and whether it is usable.
func (o Outcome[T]) Value() (T, bool) { return o.value, o.state == OutcomeOK }

// Reason returns the degradation or failure reason ("" for Ok).
func (o Outcome[T]) Reason() string { return o.reason }

// Err returns the underlying cause, if any.
func (o Outcome[T]) Err() error { return o.err }
