// Package bus provides the channels the engine runs on: the soft-capped
// envelope queue feeding workers, the event bus feeding the status
// aggregator, and the uploading gate.
package bus
