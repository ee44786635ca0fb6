// Package daemon runs the long-lived shuttle process: single-instance
// locking, the upload engine lifecycle, and the control API observers and
// the CLI talk to.
package daemon
