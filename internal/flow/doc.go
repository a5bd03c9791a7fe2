// Package flow owns the verification step sequence. A Machine tracks the
// navigation history, enforces the transition table and per-step
// preconditions, and keeps the host platform's native back stack in lockstep
// with logical navigation so one native back event is exactly one pop.
package flow
