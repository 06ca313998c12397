package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/settle/internal/clock"
)

// Translator maps the full current input to the output the target renders.
// An empty result means the target never renders anything for that input.
type Translator func(input string) string

// Echo renders the input unchanged.
func Echo(input string) string {
	return input
}

// TableTranslator looks inputs up in table, falling back to fallback for
// unknown inputs (such as half-typed prefixes). A nil fallback renders
// nothing for unknown inputs.
func TableTranslator(table map[string]string, fallback Translator) Translator {
	return func(input string) string {
		if out, ok := table[input]; ok {
			return out
		}
		if fallback == nil {
			return ""
		}
		return fallback(input)
	}
}

// ErrClosed is returned by any call on a closed FakeDriver.
var ErrClosed = errors.New("driver closed")

// FakeDriver simulates the target UI in memory.
//
// Time comes from the injected clock, so with a virtual clock the
// simulation is fully deterministic. The model:
//
//   - After every input change the previously visible text stays on screen
//     for Debounce (ClearLatency when the input became empty).
//   - Rendering then streams the translation one rune per StreamStep, or all
//     at once when StreamStep is zero.
//   - An empty input renders the idle marker.
type FakeDriver struct {
	clock     clock.Clock
	translate Translator

	debounce     time.Duration
	streamStep   time.Duration
	clearLatency time.Duration
	idleMarker   string

	navigateErr error
	locateFails map[Field]map[int]bool
	locateCalls map[Field]int
	readErr     error
	readFails   map[int]bool
	readCalls   int

	navigated     bool
	inputLocated  bool
	outputLocated bool
	closed        bool

	input     string
	changedAt time.Time
	stale     string

	calls []string
}

// FakeOption configures a FakeDriver.
type FakeOption func(*FakeDriver)

// WithDebounce sets the delay between an input change and the start of rendering.
func WithDebounce(d time.Duration) FakeOption {
	return func(f *FakeDriver) {
		f.debounce = d
	}
}

// WithStreamStep sets the delay between successive rendered runes.
func WithStreamStep(d time.Duration) FakeOption {
	return func(f *FakeDriver) {
		f.streamStep = d
	}
}

// WithClearLatency sets how long stale output survives a clear.
func WithClearLatency(d time.Duration) FakeOption {
	return func(f *FakeDriver) {
		f.clearLatency = d
	}
}

// WithIdleMarker sets the text shown for an empty input.
func WithIdleMarker(s string) FakeOption {
	return func(f *FakeDriver) {
		f.idleMarker = s
	}
}

// WithNavigateError makes every Navigate fail with err.
func WithNavigateError(err error) FakeOption {
	return func(f *FakeDriver) {
		f.navigateErr = err
	}
}

// FailLocate makes the given (1-based) Locate calls for field fail.
// With no call numbers, every lookup for field fails.
func FailLocate(field Field, calls ...int) FakeOption {
	return func(f *FakeDriver) {
		m := map[int]bool{}
		for _, c := range calls {
			m[c] = true
		}
		if len(calls) == 0 {
			m[0] = true
		}
		f.locateFails[field] = m
	}
}

// FailRead makes the given (1-based) ReadOutputText calls return err.
// With no call numbers, every read fails.
func FailRead(err error, calls ...int) FakeOption {
	return func(f *FakeDriver) {
		f.readErr = err
		f.readFails = map[int]bool{}
		for _, c := range calls {
			f.readFails[c] = true
		}
		if len(calls) == 0 {
			f.readFails[0] = true
		}
	}
}

// NewFakeDriver creates a simulated session rendering through translate.
func NewFakeDriver(c clock.Clock, translate Translator, opts ...FakeOption) *FakeDriver {
	f := &FakeDriver{
		clock:       c,
		translate:   translate,
		locateFails: map[Field]map[int]bool{},
		locateCalls: map[Field]int{},
		changedAt:   c.Now(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Calls returns the actions performed so far, in order.
func (f *FakeDriver) Calls() []string {
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Input returns the current content of the simulated input field.
func (f *FakeDriver) Input() string {
	return f.input
}

func (f *FakeDriver) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Navigate implements Driver. A navigation reloads the page.
func (f *FakeDriver) Navigate(ctx context.Context, url string) error {
	if f.closed {
		return ErrClosed
	}
	f.record("navigate %s", url)
	if err := ctx.Err(); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	if f.navigateErr != nil {
		return &NavigationError{URL: url, Err: f.navigateErr}
	}
	f.navigated = true
	f.inputLocated = false
	f.outputLocated = false
	f.input = ""
	f.stale = ""
	f.changedAt = f.clock.Now()
	return nil
}

func (f *FakeDriver) locateFailed(field Field) bool {
	f.locateCalls[field]++
	m := f.locateFails[field]
	return m[0] || m[f.locateCalls[field]]
}

// LocateInputField implements Driver.
func (f *FakeDriver) LocateInputField(ctx context.Context, d InputDescriptor) error {
	if f.closed {
		return ErrClosed
	}
	f.record("locate input")
	if !f.navigated || f.locateFailed(FieldInput) {
		f.inputLocated = false
		return &ElementNotFoundError{Field: FieldInput, Descriptor: d.String()}
	}
	f.inputLocated = true
	return nil
}

// LocateOutputField implements Driver.
func (f *FakeDriver) LocateOutputField(ctx context.Context, d OutputDescriptor) error {
	if f.closed {
		return ErrClosed
	}
	f.record("locate output")
	if !f.navigated || f.locateFailed(FieldOutput) {
		f.outputLocated = false
		return &ElementNotFoundError{Field: FieldOutput, Descriptor: d.String()}
	}
	if f.idleMarker == "" {
		f.idleMarker = d.IdleMarker
	}
	f.outputLocated = true
	return nil
}

// ClearInput implements Driver.
func (f *FakeDriver) ClearInput(ctx context.Context) error {
	if err := f.ready(ctx, f.inputLocated); err != nil {
		return err
	}
	f.record("clear")
	f.change("")
	return nil
}

// SetInputText implements Driver.
func (f *FakeDriver) SetInputText(ctx context.Context, text string) error {
	if err := f.ready(ctx, f.inputLocated); err != nil {
		return err
	}
	f.record("set %s", text)
	f.change(text)
	return nil
}

// TypeIncrementally implements Driver.
func (f *FakeDriver) TypeIncrementally(ctx context.Context, text string, perChar time.Duration) error {
	if err := f.ready(ctx, f.inputLocated); err != nil {
		return err
	}
	f.record("type %s", text)
	for _, r := range text {
		f.change(f.input + string(r))
		if err := f.clock.Sleep(ctx, perChar); err != nil {
			return err
		}
	}
	return nil
}

// ReadOutputText implements Driver.
func (f *FakeDriver) ReadOutputText(ctx context.Context) (string, error) {
	if err := f.ready(ctx, f.outputLocated); err != nil {
		return "", err
	}
	f.readCalls++
	if f.readErr != nil && (f.readFails[0] || f.readFails[f.readCalls]) {
		return "", f.readErr
	}
	return f.visible(f.clock.Now()), nil
}

// Close implements Driver.
func (f *FakeDriver) Close() error {
	f.closed = true
	return nil
}

func (f *FakeDriver) ready(ctx context.Context, located bool) error {
	if f.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !located {
		return ErrNotLocated
	}
	return nil
}

// change replaces the input, freezing whatever was visible as stale text.
func (f *FakeDriver) change(input string) {
	now := f.clock.Now()
	f.stale = f.visible(now)
	f.input = input
	f.changedAt = now
}

// visible computes what the output field shows at now.
func (f *FakeDriver) visible(now time.Time) string {
	delay := f.debounce
	target := f.idleMarker
	if f.input == "" {
		delay = f.clearLatency
	} else {
		target = f.translate(f.input)
	}

	renderAt := f.changedAt.Add(delay)
	if now.Before(renderAt) {
		return f.stale
	}
	if f.streamStep <= 0 || f.input == "" {
		return target
	}
	rs := []rune(target)
	n := int(now.Sub(renderAt)/f.streamStep) + 1
	if n > len(rs) {
		n = len(rs)
	}
	return string(rs[:n])
}
