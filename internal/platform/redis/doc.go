// Package redis publishes request transition events on a Redis pub/sub
// channel. Subscribers receive the same JSON encoding used by the Kafka
// publisher and the WebSocket stream.
package redis
