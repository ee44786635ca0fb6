// Package worker runs the upload workers. Each worker sets up a session,
// parks on the uploading gate, polls the envelope queue, and publishes
// exactly one terminal result event per envelope it consumes.
package worker
