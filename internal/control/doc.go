// Package control is the HTTP client side of the daemon's control API,
// used by the shuttle CLI.
package control
