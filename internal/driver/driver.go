// Package driver abstracts a controllable browser session.
//
// The runner only needs a handful of capabilities from the automation
// backend: navigate, locate the input and output fields, inject text and
// read the rendered output. Driver captures exactly that set so the same
// runner drives a real Chrome session (ChromeDriver) or a deterministic
// in-memory simulation (FakeDriver).
//
// # Clearing
//
// ClearInput must leave the output field empty or showing the configured
// idle marker, but the change is not instantaneous: the target may still be
// flushing an update for the previous input. Callers always apply a settle
// wait after clearing before injecting new text.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Driver is the capability set of one browser session.
//
// A Driver is owned by a single runner and is not safe for concurrent use.
type Driver interface {
	// Navigate loads url and waits for the page to become ready.
	// Failures are returned as *NavigationError.
	Navigate(ctx context.Context, url string) error

	// LocateInputField resolves the text input. Subsequent input actions
	// target the located element. Returns *ElementNotFoundError if absent.
	LocateInputField(ctx context.Context, d InputDescriptor) error

	// LocateOutputField resolves the rendered output element.
	// Returns *ElementNotFoundError if absent.
	LocateOutputField(ctx context.Context, d OutputDescriptor) error

	// ClearInput empties the input field.
	ClearInput(ctx context.Context) error

	// SetInputText replaces the input content in one step.
	SetInputText(ctx context.Context, text string) error

	// TypeIncrementally appends text one character at a time, pausing
	// perChar between keystrokes so the target's debounce is exercised.
	TypeIncrementally(ctx context.Context, text string, perChar time.Duration) error

	// ReadOutputText returns the current raw text of the output field.
	ReadOutputText(ctx context.Context) (string, error)

	// Close releases the session.
	Close() error
}

// InputDescriptor locates the input by ARIA role and accessible name.
type InputDescriptor struct {
	Role string `yaml:"role" json:"role"`
	Name string `yaml:"name" json:"name"`
}

// String renders the descriptor for error messages.
func (d InputDescriptor) String() string {
	return fmt.Sprintf("role=%s name=%q", d.Role, d.Name)
}

// OutputDescriptor locates the output by CSS selector.
//
// The target styles its input and output with the same classes, so
// elements whose role is listed in ExcludeRoles (and textarea elements) are
// filtered out of the match.
type OutputDescriptor struct {
	CSS          string   `yaml:"css" json:"css"`
	ExcludeRoles []string `yaml:"exclude_roles" json:"exclude_roles"`

	// IdleMarker is the placeholder text the field shows with no input.
	// Empty means the idle field is blank.
	IdleMarker string `yaml:"idle_marker" json:"idle_marker,omitempty"`
}

// String renders the descriptor for error messages.
func (d OutputDescriptor) String() string {
	return fmt.Sprintf("css=%q exclude_roles=%v", d.CSS, d.ExcludeRoles)
}

// IsIdle reports whether text is what the output shows with empty input.
// Surrounding whitespace is ignored on both sides.
func (d OutputDescriptor) IsIdle(text string) bool {
	text = strings.TrimSpace(text)
	marker := strings.TrimSpace(d.IdleMarker)
	return text == "" || (marker != "" && text == marker)
}

// Field identifies which element a lookup was for.
type Field string

const (
	FieldInput  Field = "input"
	FieldOutput Field = "output"
)

// NavigationError means the target could not be reached or loaded.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// ElementNotFoundError means a descriptor matched nothing on the page.
type ElementNotFoundError struct {
	Field      Field
	Descriptor string
	Err        error
}

func (e *ElementNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s field not found (%s): %v", e.Field, e.Descriptor, e.Err)
	}
	return fmt.Sprintf("%s field not found (%s)", e.Field, e.Descriptor)
}

func (e *ElementNotFoundError) Unwrap() error {
	return e.Err
}

// ErrNotLocated is returned by input and output actions issued before the
// corresponding Locate call succeeded.
var ErrNotLocated = errors.New("element not located")

// IsNavigationError returns true if err is a navigation failure.
// Uses errors.As to handle wrapped errors.
func IsNavigationError(err error) bool {
	var ne *NavigationError
	return errors.As(err, &ne)
}

// IsElementNotFound returns true if err is a failed element lookup.
// Uses errors.As to handle wrapped errors.
func IsElementNotFound(err error) bool {
	var ee *ElementNotFoundError
	return errors.As(err, &ee)
}
