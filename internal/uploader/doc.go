// Package uploader drains the offline queue to the verification backend.
//
// A Manager walks pending items with bounded concurrency and a configurable
// launch stagger, claiming each item through the queue's guarded status
// transitions so overlapping drains never upload the same artifact twice.
// Failed items stay failed until a manual retry or the one automatic retry
// granted on reconnect.
package uploader
