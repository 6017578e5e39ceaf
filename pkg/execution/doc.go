// Package execution runs a plan against a RunState.
//
// Steps run strictly in sequence, sorted once by order. Each attempt
// appends a running StepExecution, dispatches to the tool invoker or the
// executor router, and records the terminal status. Failed attempts are
// offered to a reflection.Decider; retries are bounded per step order by a
// RetryPolicy. Configuration errors, executor errors, panics and
// cancellation end the run as failed without retry. The run is always
// finalized with the outputs collected so far.
package execution
