package harness

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/settle/internal/verdict"
)

// Report is the result of one suite run against one target.
type Report struct {
	RunID      string            `json:"run_id"`
	TargetURL  string            `json:"target_url"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Verdicts   []verdict.Verdict `json:"verdicts"`
	Summary    verdict.Summary   `json:"summary"`

	// Planned is the number of cases the run was asked to execute. It
	// exceeds Summary.Total only when the run was aborted.
	Planned int `json:"planned"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// Passed is true iff the run completed and every verdict passed.
func (r *Report) Passed() bool {
	return !r.Aborted && r.Summary.AllPassed()
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Observer receives progress from a Runner.
//
// Callbacks run synchronously on the runner's goroutine.
type Observer interface {
	OnTransition(caseID string, s verdict.State, at time.Duration)
	OnVerdict(v verdict.Verdict)
}

// Observers fans out to several observers in order.
type Observers []Observer

// OnTransition implements Observer.
func (os Observers) OnTransition(caseID string, s verdict.State, at time.Duration) {
	for _, o := range os {
		o.OnTransition(caseID, s, at)
	}
}

// OnVerdict implements Observer.
func (os Observers) OnVerdict(v verdict.Verdict) {
	for _, o := range os {
		o.OnVerdict(v)
	}
}

// RunIDGenerator produces run identifiers.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 run IDs.
//
// Thread-safety: UUIDv7Generator is safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
