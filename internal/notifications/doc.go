// Package notifications delivers sync milestones via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. Upload
// and error notifications can be toggled independently so an operator can
// keep failure alerts while silencing per-item progress.
package notifications
