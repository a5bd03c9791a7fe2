// Package config loads, normalizes, and validates veriflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// workflow core and CLI need: the data directory backing the artifact queue,
// upload and retry policy, connectivity probing, wake-lock policy, locale
// defaults, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
