// Package orchestrator runs the upload engine: job distribution, the worker
// pool, status aggregation, and observer broadcasts under one lifecycle.
package orchestrator
