// Package faults defines the shared error taxonomy for the verification
// workflow.
//
// Sentinel errors classify failures by recovery path: storage faults surface
// to the user as "cannot save progress", transport faults feed the upload
// retry policy, and capture aborts re-prompt the same step. Wrap tags an
// error with one of the sentinels while preserving component and operation
// context for diagnostics.
package faults
