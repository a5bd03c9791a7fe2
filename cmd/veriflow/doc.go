// Command veriflow is the operator CLI for the verification workflow core.
// It inspects and manages the offline upload queue, validates configuration,
// and exercises the notification pipeline.
package main
