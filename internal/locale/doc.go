// Package locale resolves the verification flow's display language.
//
// A Catalog is built from the configured supported locales and matches a
// user's preferred tags against it using BCP 47 matching, so "en-IN" resolves
// to "en" and unknown preferences fall back to the configured default.
package locale
