// Package status folds engine events into the snapshot observers see. The
// aggregator owns all ledger marks; nothing else moves a claimed job.
package status
