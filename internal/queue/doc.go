// Package queue persists captured verification artifacts awaiting upload.
//
// The Store is the record of truth for "what still needs to reach the
// server", independent of the process that enqueued an item: it is backed by
// SQLite so state survives restarts, and guarded by a file lock so only one
// process writes it. Items carry a stable id across retries, a lifecycle
// status (pending, uploading, completed, failed), attempt counters, and the
// last transport error for diagnostics.
//
// Status transitions go through the Mark/Retry helpers, which enforce the
// legal transition set; payload columns are never rewritten after insert.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
