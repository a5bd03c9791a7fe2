// Package session assembles the verification workflow: the step machine,
// the identity accumulator, the offline queue, the uploader, the wake lock
// manager, and the connectivity monitor, wired so that upload outcomes can
// never corrupt accumulated identity data or the navigation history.
package session
