// Package kafka publishes request transition events to a Kafka topic so that
// listeners in other processes can follow request progress.
package kafka
