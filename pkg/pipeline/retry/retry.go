// Package retry implements the bounded retry budget used around reasoning calls.
//
// A Machine moves through Attempting -> (BackingOff -> Attempting)* -> Succeeded|Exhausted.
// Every failed attempt is classified, and the Policy table decides how much budget the
// failure consumes and how long to wait before the next attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a Machine.
type State int

const (
	Attempting State = iota
	BackingOff
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case BackingOff:
		return "backing_off"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Class is the classification of one failed attempt.
type Class int

const (
	// ClassEmpty: the endpoint answered but the text was empty or missing.
	ClassEmpty Class = iota
	// ClassRateLimited: the failure text mentions HTTP 429.
	ClassRateLimited
	// ClassFailure: any other failure.
	ClassFailure
)

func (c Class) String() string {
	switch c {
	case ClassEmpty:
		return "empty"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFailure:
		return "failure"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify maps a request error to a Class. A nil error is an empty response.
func Classify(err error) Class {
	if err == nil {
		return ClassEmpty
	}
	if strings.Contains(err.Error(), "429") {
		return ClassRateLimited
	}
	return ClassFailure
}

// Rule is the budget cost and wait applied after a failure of one class.
type Rule struct {
	Cost  int
	Delay time.Duration
}

// Policy is the retry budget plus the per-class rule table.
type Policy struct {
	Budget int
	Rules  map[Class]Rule
}

const (
	DefaultBudget         = 10
	DefaultRateLimitDelay = 10 * time.Second
	DefaultFailureDelay   = 1 * time.Second
)

// DefaultPolicy returns the standard table: empty responses retry immediately for one
// unit, rate limits wait 10s for one unit, other failures wait 1s and cost two units.
func DefaultPolicy() Policy {
	return Policy{
		Budget: DefaultBudget,
		Rules: map[Class]Rule{
			ClassEmpty:       {Cost: 1, Delay: 0},
			ClassRateLimited: {Cost: 1, Delay: DefaultRateLimitDelay},
			ClassFailure:     {Cost: 2, Delay: DefaultFailureDelay},
		},
	}
}

// Rule returns the rule for c. Unknown classes are treated as ClassFailure, and a
// non-positive cost is bumped to 1 so the machine always terminates.
func (p Policy) Rule(c Class) Rule {
	r, ok := p.Rules[c]
	if !ok {
		r, ok = p.Rules[ClassFailure]
		if !ok {
			r = Rule{Cost: 2, Delay: DefaultFailureDelay}
		}
	}
	if r.Cost <= 0 {
		r.Cost = 1
	}
	if r.Delay < 0 {
		r.Delay = 0
	}
	return r
}

// ErrExhausted is matched by errors.Is on every terminal failure from a Machine.
var ErrExhausted = errors.New("failed to get response: too many failed attempts")

// ExhaustedError is returned once the budget drops to zero or below.
type ExhaustedError struct {
	Attempts int
	// Last is the most recent request error, nil if every attempt returned empty text.
	Last error
}

func (e *ExhaustedError) Error() string {
	if e == nil {
		return ErrExhausted.Error()
	}
	if e.Last == nil {
		return fmt.Sprintf("%s (attempts=%d)", ErrExhausted.Error(), e.Attempts)
	}
	return fmt.Sprintf("%s (attempts=%d): %s", ErrExhausted.Error(), e.Attempts, e.Last.Error())
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Last
}

// Step describes one failed attempt and the transition it caused.
type Step struct {
	Attempt   int
	Class     Class
	Err       error
	Cost      int
	Delay     time.Duration
	Remaining int
	Next      State
}

// Machine tracks the retry budget for one logical call. It is not safe for
// concurrent use.
type Machine struct {
	policy    Policy
	remaining int
	state     State
	attempts  int
	last      error
}

// NewMachine starts a Machine in Attempting with the policy's full budget.
func NewMachine(p Policy) *Machine {
	if p.Budget <= 0 {
		p.Budget = DefaultBudget
	}
	if p.Rules == nil {
		p.Rules = DefaultPolicy().Rules
	}
	return &Machine{policy: p, remaining: p.Budget, state: Attempting}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Remaining() int { return m.remaining }

func (m *Machine) Attempts() int { return m.attempts }

func (m *Machine) Policy() Policy { return m.policy }

func (m *Machine) LastError() error { return m.last }

// Begin records the start of an attempt and returns its 1-based number.
func (m *Machine) Begin() int {
	if m.state != Attempting {
		panic(fmt.Sprintf("retry: Begin called in state %s", m.state))
	}
	m.attempts++
	return m.attempts
}

// Succeed moves the machine to Succeeded.
func (m *Machine) Succeed() {
	m.state = Succeeded
}

// Fail charges the budget for a failed attempt and picks the next state.
func (m *Machine) Fail(c Class, err error) Step {
	rule := m.policy.Rule(c)
	if err != nil {
		m.last = err
	}
	m.remaining -= rule.Cost

	step := Step{
		Attempt:   m.attempts,
		Class:     c,
		Err:       err,
		Cost:      rule.Cost,
		Delay:     rule.Delay,
		Remaining: m.remaining,
	}
	if m.remaining <= 0 {
		m.state = Exhausted
		step.Delay = 0
	} else {
		m.state = BackingOff
	}
	step.Next = m.state
	return step
}

// Resume leaves BackingOff once the wait has elapsed.
func (m *Machine) Resume() {
	if m.state == BackingOff {
		m.state = Attempting
	}
}

// Err returns the terminal error once Exhausted, nil otherwise.
func (m *Machine) Err() error {
	if m.state != Exhausted {
		return nil
	}
	return &ExhaustedError{Attempts: m.attempts, Last: m.last}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
