// Package harness runs transliteration test cases against a live target.
//
// A Runner owns one driver session and executes cases strictly one after
// another. Each case walks the state machine
//
//	idle → cleared → input_injected → stabilizing → compared → pass|fail
//
// with timeout and driver_error as the other terminal states. Every case
// ends in exactly one verdict, whatever happened to the case before it.
//
// # Isolation
//
// Before injecting input the runner re-locates both fields, clears the
// input and waits PostClearSettle so that the previous case's output has
// flushed. The wait is a fixed sleep: the target exposes no signal for a
// finished clear.
//
// # Partial cases
//
// Partial cases type the prefix one key at a time, wait for any non-empty
// intermediate rendering, record it, type the remainder and stabilize
// again against the full expectation.
//
// # Aborts
//
// Per-case problems never escape RunCase. Only session-level failures
// (the target cannot be loaded, or ctx is cancelled) stop RunSuite, which
// then returns the verdicts gathered so far with an *AbortError.
//
// # Determinism
//
// All waits go through the injected clock.Clock. With testutil.FakeClock and
// driver.FakeDriver a suite run is fully reproducible, which is what the
// golden snapshots in the report package rely on.
package harness
