// Package redislog is the durable, replayable append log behind the bus,
// backed by Redis Streams.
//
// One stream per topic, named "<prefix>:<EVENT_TYPE>" (default prefix
// "events"). Each entry carries three fields:
//   - event_type: string discriminator
//   - event_data: the flat JSON-serialized event
//   - timestamp:  producer timestamp, RFC 3339
//
// Consumption is consumer-group based (XREADGROUP); an entry stays eligible
// for redelivery until it is acknowledged (XACK), which gives at-least-once
// delivery. Streams are trimmed approximately to MaxLenApprox on every
// append. Replay is an inclusive XRANGE over the time-derived entry IDs,
// "{millis}-{seq}", so range boundaries are plain timestamps.
package redislog
