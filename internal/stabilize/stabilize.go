// Package stabilize waits for an asynchronously rendered text field to
// settle.
//
// The target renders output incrementally as its service streams partial
// results and offers no completion signal. Reading too early yields a
// truncated or stale string, so a read is only trusted once the same text
// has been observed on several consecutive polls.
//
// # Algorithm
//
// The field is read every Policy.PollInterval. Reads are edge-trimmed. The
// stabilizer counts consecutive identical reads and declares the output
// stable when the count reaches Policy.MinStableRepeats and, if
// Policy.ConsiderEmptyAsUnstable is set, the text is non-empty. A read
// matching the idle predicate (WithIdle) counts as empty. If Policy.MaxWait
// elapses first it fails with a *TimeoutError carrying the last observed
// text.
//
// A first read that already satisfies the predicate returns immediately.
// The final sleep is clamped to the deadline, so a call never runs longer
// than MaxWait plus one PollInterval.
package stabilize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/settle/internal/clock"
)

// ReadFunc returns the current text of the observed field.
type ReadFunc func(ctx context.Context) (string, error)

// Policy configures when a read is considered final.
type Policy struct {
	PollInterval            time.Duration
	MaxWait                 time.Duration
	MinStableRepeats        int
	ConsiderEmptyAsUnstable bool
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:            250 * time.Millisecond,
		MaxWait:                 10 * time.Second,
		MinStableRepeats:        3,
		ConsiderEmptyAsUnstable: true,
	}
}

// PresencePolicy derives a policy that settles on the first non-empty read.
// The deadline and cadence of p are kept.
func (p Policy) PresencePolicy() Policy {
	return Policy{
		PollInterval:            p.PollInterval,
		MaxWait:                 p.MaxWait,
		MinStableRepeats:        1,
		ConsiderEmptyAsUnstable: true,
	}
}

// Validate checks that the policy can terminate.
func (p Policy) Validate() error {
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.PollInterval)
	}
	if p.MaxWait < p.PollInterval {
		return fmt.Errorf("max wait (%s) must be at least the poll interval (%s)", p.MaxWait, p.PollInterval)
	}
	if p.MinStableRepeats < 1 {
		return fmt.Errorf("min stable repeats must be at least 1, got %d", p.MinStableRepeats)
	}
	return nil
}

// Result is a settled read.
type Result struct {
	Text    string
	Elapsed time.Duration
	Polls   int
}

// TimeoutError is returned when the output never settled.
type TimeoutError struct {
	// Last is the final observed text. It is empty when the field was
	// empty or idle.
	Last    string
	Elapsed time.Duration
	Polls   int
	MaxWait time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Last == "" {
		return fmt.Sprintf("output did not settle within %s after %d polls (field stayed empty)", e.MaxWait, e.Polls)
	}
	return fmt.Sprintf("output did not settle within %s after %d polls (last read %q)", e.MaxWait, e.Polls, e.Last)
}

// IsTimeout returns true if err is a stabilization timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ReadError wraps a failure of the read accessor.
type ReadError struct {
	Polls int
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read output (poll %d): %v", e.Polls, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Stabilizer polls a field until it settles.
type Stabilizer struct {
	policy Policy
	clock  clock.Clock
	logger *slog.Logger
	idle   func(string) bool
}

// Option configures a Stabilizer.
type Option func(*Stabilizer)

// WithClock sets the time source. Default: the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Stabilizer) {
		s.clock = c
	}
}

// WithLogger sets the logger for poll diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stabilizer) {
		s.logger = l
	}
}

// WithIdle sets the predicate for placeholder text the field shows while
// nothing is rendered. Matching reads are treated exactly like empty reads.
// It is called with edge-trimmed text.
func WithIdle(idle func(string) bool) Option {
	return func(s *Stabilizer) {
		s.idle = idle
	}
}

// New creates a Stabilizer. The policy must be valid.
func New(policy Policy, opts ...Option) (*Stabilizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stabilization policy: %w", err)
	}
	s := &Stabilizer{
		policy: policy,
		clock:  clock.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// empty reports whether text means nothing is rendered.
func (s *Stabilizer) empty(text string) bool {
	return text == "" || (s.idle != nil && s.idle(text))
}

// Policy returns the configured policy.
func (s *Stabilizer) Policy() Policy {
	return s.policy
}

// Wait polls read with the stabilizer's policy.
func (s *Stabilizer) Wait(ctx context.Context, read ReadFunc) (Result, error) {
	return s.WaitWith(ctx, s.policy, read)
}

// WaitWith polls read with an explicit policy, sharing the clock and logger.
//
// Errors: *TimeoutError when the deadline passes, *ReadError when the
// accessor fails, or the context error when ctx is cancelled.
func (s *Stabilizer) WaitWith(ctx context.Context, p Policy, read ReadFunc) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid stabilization policy: %w", err)
	}

	start := s.clock.Now()
	deadline := start.Add(p.MaxWait)

	var (
		last    string
		repeats int
		polls   int
	)
	for {
		text, err := read(ctx)
		polls++
		if err != nil {
			return Result{}, &ReadError{Polls: polls, Err: err}
		}
		text = strings.TrimSpace(text)
		if s.empty(text) {
			text = ""
		}

		if polls > 1 && text == last {
			repeats++
		} else {
			last = text
			repeats = 1
		}

		if repeats >= p.MinStableRepeats && !(p.ConsiderEmptyAsUnstable && text == "") {
			elapsed := clock.Since(s.clock, start)
			s.logger.Debug("output settled", "polls", polls, "elapsed", elapsed, "len", len([]rune(text)))
			return Result{Text: text, Elapsed: elapsed, Polls: polls}, nil
		}

		now := s.clock.Now()
		if !now.Before(deadline) {
			elapsed := now.Sub(start)
			s.logger.Debug("output did not settle", "polls", polls, "elapsed", elapsed, "last", text)
			return Result{}, &TimeoutError{Last: text, Elapsed: elapsed, Polls: polls, MaxWait: p.MaxWait}
		}

		wait := p.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}
}
