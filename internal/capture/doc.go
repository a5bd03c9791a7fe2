// Package capture defines the contract between the verification flow and
// the device capture surfaces that produce document photos and biometric
// samples.
package capture
