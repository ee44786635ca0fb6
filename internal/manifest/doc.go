// Package manifest reads the collection manifest and shapes its entries
// into upload payloads.
package manifest
