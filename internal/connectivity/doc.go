// Package connectivity tracks network reachability for the sync pipeline.
// A Monitor fans observed online/offline transitions out to subscribers and
// fires a reconnect hook exactly once per offline-to-online edge, optionally
// confirming reachability with a periodic HTTP probe.
package connectivity
