// Package runstate holds the single authoritative record of one run: its
// plan, step executions, shared state, retry counters, tool-call audit log,
// status and final output.
//
// A RunState is owned by the component that created it for the lifetime of
// one run. The plan executor mutates it in place from a single flow of
// control; readers such as progress streams take snapshots through Result.
package runstate
