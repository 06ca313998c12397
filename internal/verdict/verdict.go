// Package verdict defines the immutable outcome records produced once per
// test case per run, and the runner states they record.
package verdict

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the terminal classification of one test case.
type Outcome string

const (
	// OutcomePass means the settled output matched the expected text.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the settled output differed from the expected text.
	OutcomeFail Outcome = "fail"
	// OutcomeTimeout means no stable, non-empty output arrived in time.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeDriverError means the automation backend failed for this case.
	OutcomeDriverError Outcome = "driver_error"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{OutcomePass, OutcomeFail, OutcomeTimeout, OutcomeDriverError}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePass, OutcomeFail, OutcomeTimeout, OutcomeDriverError:
		return true
	}
	return false
}

// State is a step of the per-case runner state machine.
type State string

const (
	StateIdle          State = "idle"
	StateCleared       State = "cleared"
	StateInputInjected State = "input_injected"
	StateStabilizing   State = "stabilizing"
	StateCompared      State = "compared"
	StatePass          State = "pass"
	StateFail          State = "fail"
	StateTimeout       State = "timeout"
	StateDriverError   State = "driver_error"
)

// IsTerminal returns true if no transition leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StatePass, StateFail, StateTimeout, StateDriverError:
		return true
	}
	return false
}

// TerminalState maps an outcome to the state that ends the case.
func TerminalState(o Outcome) State {
	switch o {
	case OutcomePass:
		return StatePass
	case OutcomeFail:
		return StateFail
	case OutcomeTimeout:
		return StateTimeout
	default:
		return StateDriverError
	}
}

// Transition records entry into a state, relative to the case start.
// In JSON the offset is whole milliseconds under at_ms.
type Transition struct {
	State State
	At    time.Duration
}

type transitionJSON struct {
	State State `json:"state"`
	AtMS  int64 `json:"at_ms"`
}

// MarshalJSON implements json.Marshaler.
func (t Transition) MarshalJSON() ([]byte, error) {
	return json.Marshal(transitionJSON{State: t.State, AtMS: t.At.Milliseconds()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Transition) UnmarshalJSON(data []byte) error {
	var w transitionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.State = w.State
	t.At = time.Duration(w.AtMS) * time.Millisecond
	return nil
}

// Diff describes where actual output diverged from the expectation.
// Indices and lengths count runes, not bytes.
type Diff struct {
	FirstDiffIndex int    `json:"first_diff_index"`
	ExpectedLen    int    `json:"expected_len"`
	ActualLen      int    `json:"actual_len"`
	ExpectedRune   string `json:"expected_rune,omitempty"`
	ActualRune     string `json:"actual_rune,omitempty"`
	ExpectedNear   string `json:"expected_near,omitempty"`
	ActualNear     string `json:"actual_near,omitempty"`

	// NormalizationOnly is set when the two texts are equal after Unicode
	// NFC normalization. It is a hint for the reader; the outcome is still Fail.
	NormalizationOnly bool `json:"normalization_only,omitempty"`
}

// String renders the diff on one line for logs and text reports.
func (d *Diff) String() string {
	if d == nil {
		return ""
	}
	s := fmt.Sprintf("first difference at rune %d (expected len %d, actual len %d)",
		d.FirstDiffIndex, d.ExpectedLen, d.ActualLen)
	if d.ExpectedRune != "" || d.ActualRune != "" {
		s += fmt.Sprintf(": expected %q, got %q", d.ExpectedRune, d.ActualRune)
	}
	if d.NormalizationOnly {
		s += " [equal after NFC normalization]"
	}
	return s
}

// Verdict is the outcome record for one test case.
//
// Verdicts are built by the runner and never modified once returned.
type Verdict struct {
	CaseID      string        `json:"case_id"`
	DisplayName string        `json:"display_name"`
	Suite       string        `json:"suite"`
	Outcome     Outcome       `json:"outcome"`
	Expected    string        `json:"expected"`
	Actual      *string       `json:"actual,omitempty"`
	Partial     *string       `json:"partial_output,omitempty"`
	Diff        *Diff         `json:"diff,omitempty"`
	Elapsed     time.Duration `json:"-"` // elapsed_ms in JSON
	States      []Transition  `json:"states"`
	Error       string        `json:"error,omitempty"`
}

// verdictFields has Verdict's fields without its JSON methods.
type verdictFields Verdict

type verdictJSON struct {
	verdictFields
	ElapsedMS int64 `json:"elapsed_ms"`
}

// MarshalJSON implements json.Marshaler. Elapsed is emitted as elapsed_ms.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(verdictJSON{verdictFields: verdictFields(v), ElapsedMS: v.Elapsed.Milliseconds()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var w verdictJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Verdict(w.verdictFields)
	v.Elapsed = time.Duration(w.ElapsedMS) * time.Millisecond
	return nil
}

// Passed reports whether the case passed.
func (v Verdict) Passed() bool {
	return v.Outcome == OutcomePass
}

// ActualText returns the settled output, or "" if none was captured.
func (v Verdict) ActualText() string {
	if v.Actual == nil {
		return ""
	}
	return *v.Actual
}

// StateNames returns the visited states in order.
func (v Verdict) StateNames() []State {
	out := make([]State, len(v.States))
	for i, tr := range v.States {
		out[i] = tr.State
	}
	return out
}

// Reached reports whether the case passed through s.
func (v Verdict) Reached(s State) bool {
	for _, tr := range v.States {
		if tr.State == s {
			return true
		}
	}
	return false
}

// Summary tallies outcomes across a run.
type Summary struct {
	Total        int `json:"total"`
	Passed       int `json:"passed"`
	Failed       int `json:"failed"`
	Timeouts     int `json:"timeouts"`
	DriverErrors int `json:"driver_errors"`
}

// Summarize counts the outcomes in vs.
func Summarize(vs []Verdict) Summary {
	s := Summary{Total: len(vs)}
	for _, v := range vs {
		switch v.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeTimeout:
			s.Timeouts++
		case OutcomeDriverError:
			s.DriverErrors++
		}
	}
	return s
}

// AllPassed is true iff every verdict passed. An empty run passes.
func (s Summary) AllPassed() bool {
	return s.Passed == s.Total
}

// NotPassed returns the number of non-pass verdicts.
func (s Summary) NotPassed() int {
	return s.Total - s.Passed
}
