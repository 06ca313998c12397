package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/roach88/settle/internal/clock"
)

// inputSelect matches the element tagged by locateInputJS.
const inputSelect = `[data-settle="input"]`

// locateInputJS tags the first element with the requested role whose
// accessible name matches. The name is taken from aria-label,
// aria-labelledby, an associated <label> or the placeholder, in that order.
const locateInputJS = `(function(role, name) {
  const accName = (el) => {
    const aria = el.getAttribute('aria-label');
    if (aria) return aria.trim();
    const by = el.getAttribute('aria-labelledby');
    if (by) {
      const ref = document.getElementById(by);
      if (ref) return ref.textContent.trim();
    }
    if (el.labels && el.labels.length) return el.labels[0].textContent.trim();
    const ph = el.getAttribute('placeholder');
    return ph ? ph.trim() : '';
  };
  const roleOf = (el) => {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit;
    if (el.tagName === 'TEXTAREA') return 'textbox';
    if (el.tagName === 'INPUT') {
      const t = (el.getAttribute('type') || 'text').toLowerCase();
      if (['text', 'search', 'email', 'url', 'tel'].includes(t)) return 'textbox';
    }
    if (el.isContentEditable) return 'textbox';
    return '';
  };
  document.querySelectorAll('[data-settle="input"]').forEach((el) => el.removeAttribute('data-settle'));
  const all = Array.from(document.querySelectorAll('textarea, input, [role], [contenteditable]'));
  const match = all.find((el) => roleOf(el) === role && (name === '' || accName(el) === name.trim()));
  if (!match) return false;
  match.setAttribute('data-settle', 'input');
  return true;
})(%s, %s)`

// readOutputJS finds output candidates by CSS, drops textareas, inputs and
// excluded roles, and returns the text of the first non-empty candidate or
// of the first candidate if all are empty.
const readOutputJS = `(function(css, exclude) {
  const els = Array.from(document.querySelectorAll(css)).filter((el) => {
    if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') return false;
    if (el.getAttribute('data-settle') === 'input') return false;
    return !exclude.includes(el.getAttribute('role') || '');
  });
  if (!els.length) return {found: false, text: ''};
  const withText = els.find((el) => el.textContent && el.textContent.trim().length > 0);
  const el = withText || els[0];
  return {found: true, text: el.textContent || ''};
})(%s, %s)`

// fillInputJS replaces the input value through the native setter and fires
// input/change events so framework-bound listeners observe the change.
const fillInputJS = `(function(text) {
  const el = document.querySelector('[data-settle="input"]');
  if (!el) return false;
  el.focus();
  if (el.isContentEditable && el.tagName !== 'TEXTAREA' && el.tagName !== 'INPUT') {
    el.textContent = text;
  } else {
    const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, text);
  }
  el.dispatchEvent(new Event('input', {bubbles: true}));
  el.dispatchEvent(new Event('change', {bubbles: true}));
  return true;
})(%s)`

type outputProbe struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// ChromeOptions configures the browser process.
type ChromeOptions struct {
	Headless bool
	ExecPath string
	// WindowWidth and WindowHeight default to 1280x900.
	WindowWidth  int
	WindowHeight int
}

// ChromeDriver is a Driver backed by a chromedp-controlled Chrome tab.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	clock  clock.Clock
	logger *slog.Logger

	output        OutputDescriptor
	inputLocated  bool
	outputLocated bool
}

// ChromeOption configures a ChromeDriver.
type ChromeOption func(*ChromeDriver)

// WithChromeClock sets the clock used for keystroke pacing.
func WithChromeClock(c clock.Clock) ChromeOption {
	return func(d *ChromeDriver) {
		d.clock = c
	}
}

// WithChromeLogger sets the logger receiving browser protocol errors.
func WithChromeLogger(l *slog.Logger) ChromeOption {
	return func(d *ChromeDriver) {
		d.logger = l
	}
}

// NewChromeDriver starts a browser and opens one tab.
//
// The browser lives until Close; ctx only bounds the start-up.
func NewChromeDriver(ctx context.Context, o ChromeOptions, opts ...ChromeOption) (*ChromeDriver, error) {
	d := &ChromeDriver{
		clock:  clock.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}

	width, height := o.WindowWidth, o.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1280, 900
	}
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", o.Headless),
		chromedp.WindowSize(width, height),
	)
	if o.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(o.ExecPath))
	}

	// The browser must outlive ctx, so it hangs off a background context.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			d.logger.Debug("chrome: " + fmt.Sprintf(format, args...))
		}),
	)
	d.allocCancel = allocCancel
	d.tabCtx = tabCtx
	d.tabCancel = tabCancel

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so it must be the tab context itself.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	if !stop() {
		d.Close()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return d, nil
}

// run executes actions on the tab, bounded by the caller's ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := context.WithCancel(d.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		actx, cancelDeadline = context.WithDeadline(actx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(actx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate implements Driver.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.inputLocated = false
	d.outputLocated = false
	err := d.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

// LocateInputField implements Driver.
func (d *ChromeDriver) LocateInputField(ctx context.Context, desc InputDescriptor) error {
	d.inputLocated = false
	expr, err := jsCall(locateInputJS, desc.Role, desc.Name)
	if err != nil {
		return err
	}
	var found bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return &ElementNotFoundError{Field: FieldInput, Descriptor: desc.String(), Err: err}
	}
	if !found {
		return &ElementNotFoundError{Field: FieldInput, Descriptor: desc.String()}
	}
	d.inputLocated = true
	return nil
}

// LocateOutputField implements Driver.
func (d *ChromeDriver) LocateOutputField(ctx context.Context, desc OutputDescriptor) error {
	d.outputLocated = false
	d.output = desc
	probe, err := d.probeOutput(ctx)
	if err != nil {
		return &ElementNotFoundError{Field: FieldOutput, Descriptor: desc.String(), Err: err}
	}
	if !probe.Found {
		return &ElementNotFoundError{Field: FieldOutput, Descriptor: desc.String()}
	}
	d.outputLocated = true
	return nil
}

// ClearInput implements Driver.
func (d *ChromeDriver) ClearInput(ctx context.Context) error {
	return d.fill(ctx, "")
}

// SetInputText implements Driver.
func (d *ChromeDriver) SetInputText(ctx context.Context, text string) error {
	return d.fill(ctx, text)
}

func (d *ChromeDriver) fill(ctx context.Context, text string) error {
	if !d.inputLocated {
		return ErrNotLocated
	}
	expr, err := jsCall(fillInputJS, text)
	if err != nil {
		return err
	}
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("fill input: %w", err)
	}
	if !ok {
		d.inputLocated = false
		return &ElementNotFoundError{Field: FieldInput, Descriptor: inputSelect}
	}
	return nil
}

// TypeIncrementally implements Driver.
func (d *ChromeDriver) TypeIncrementally(ctx context.Context, text string, perChar time.Duration) error {
	if !d.inputLocated {
		return ErrNotLocated
	}
	for _, r := range text {
		if err := d.run(ctx, chromedp.SendKeys(inputSelect, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("type %q: %w", r, err)
		}
		if err := d.clock.Sleep(ctx, perChar); err != nil {
			return err
		}
	}
	return nil
}

// ReadOutputText implements Driver.
//
// The output is re-queried on every read because the target may replace the
// element while rendering.
func (d *ChromeDriver) ReadOutputText(ctx context.Context) (string, error) {
	if !d.outputLocated {
		return "", ErrNotLocated
	}
	probe, err := d.probeOutput(ctx)
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}
	if !probe.Found {
		return "", &ElementNotFoundError{Field: FieldOutput, Descriptor: d.output.String()}
	}
	return probe.Text, nil
}

func (d *ChromeDriver) probeOutput(ctx context.Context) (outputProbe, error) {
	exclude := d.output.ExcludeRoles
	if exclude == nil {
		exclude = []string{}
	}
	expr, err := jsCall(readOutputJS, d.output.CSS, exclude)
	if err != nil {
		return outputProbe{}, err
	}
	var probe outputProbe
	if err := d.run(ctx, chromedp.Evaluate(expr, &probe)); err != nil {
		return outputProbe{}, err
	}
	return probe, nil
}

// Close implements Driver. It shuts the tab and the browser process.
func (d *ChromeDriver) Close() error {
	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

// jsCall fills the %s placeholders of a JS template with JSON-encoded args.
func jsCall(tmpl string, args ...any) (string, error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf(tmpl, encoded...), nil
}
