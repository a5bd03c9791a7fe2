// Package wakelock manages the screen wake lock held during capture steps.
// A Manager tracks the desired hold across permission denials and visibility
// changes, reacquiring the platform lease when the app returns to the
// foreground and retrying once after a blocking user gesture.
package wakelock
