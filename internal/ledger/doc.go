// Package ledger tracks the upload lifecycle of every asset in the
// collection. The distributor is the only claimer; the status aggregator is
// the only marker.
package ledger
