// Package pipeline orchestrates the flow durable-log -> bus -> durable-log.
//
// Externally ingested events enter through Ingest, which admits them into a
// capacity-checked pending buffer under a backpressure policy. A periodic
// ingestion loop drains the buffer onto the bus and, when persistence is
// enabled, consumes unacknowledged log entries back onto the bus,
// acknowledging each after a successful publish. An outbound handler
// subscribed to every topic writes each dispatched bus event to the durable
// log, and a recovery loop reclaims entries that a dead consumer left
// pending.
//
// Redelivered entries carry their original event IDs, so the bus's
// idempotency window suppresses the second dispatch and the pipeline
// acknowledges them without duplicate side effects.
package pipeline
