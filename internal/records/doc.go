// Package records persists the append-only upload record store. The ledger
// treats the absence of a record as proof an asset still needs uploading, so
// every successful upload must land here before it is reported anywhere else.
package records
