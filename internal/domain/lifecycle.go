package domain

import (
	"fmt"
	"time"
)

// State is a step in the lifecycle of a single generation request.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateForwarding State = "forwarding"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// FailureKind classifies why a request ended in StateFailed.
type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "validation"
	FailureUpstream   FailureKind = "upstream"
	FailureInternal   FailureKind = "internal"
)

var transitions = map[State][]State{
	StateReceived:   {StateValidated, StateFailed},
	StateValidated:  {StateForwarding, StateFailed},
	StateForwarding: {StateCompleted, StateFailed},
}

// Lifecycle tracks one request from receipt to a terminal state. It is owned
// by the goroutine serving the request and is not safe for concurrent use.
type Lifecycle struct {
	state   State
	kind    FailureKind
	cause   error
	started time.Time
	ended   time.Time
}

// NewLifecycle starts a lifecycle in StateReceived.
func NewLifecycle(now time.Time) *Lifecycle {
	return &Lifecycle{state: StateReceived, started: now}
}

func (l *Lifecycle) State() State { return l.state }

// Kind returns the failure kind, or FailureNone unless the lifecycle failed.
func (l *Lifecycle) Kind() FailureKind { return l.kind }

// Err returns the error recorded by Fail.
func (l *Lifecycle) Err() error { return l.cause }

// Terminal reports whether the lifecycle reached Completed or Failed.
func (l *Lifecycle) Terminal() bool {
	return l.state == StateCompleted || l.state == StateFailed
}

// Advance moves to a non-failure state. Failures go through Fail so the
// kind is always recorded.
func (l *Lifecycle) Advance(to State, now time.Time) error {
	if to == StateFailed {
		return fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, StateFailed)
	}
	return l.move(to, now)
}

// Fail moves the lifecycle to StateFailed with the given kind and cause.
func (l *Lifecycle) Fail(kind FailureKind, cause error, now time.Time) error {
	if err := l.move(StateFailed, now); err != nil {
		return err
	}
	l.kind = kind
	l.cause = cause
	return nil
}

// Elapsed returns the time between receipt and the terminal transition, or
// until now while the request is still in flight.
func (l *Lifecycle) Elapsed(now time.Time) time.Duration {
	if l.Terminal() {
		return l.ended.Sub(l.started)
	}
	return now.Sub(l.started)
}

func (l *Lifecycle) move(to State, now time.Time) error {
	for _, allowed := range transitions[l.state] {
		if allowed == to {
			l.state = to
			if l.Terminal() {
				l.ended = now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}
