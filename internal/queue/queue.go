// Package queue carries email sync jobs between the scheduler and the worker.
package queue

import (
	"context"
	"errors"
)

// ErrSettled is returned when a delivery is acked or nacked a second time
var ErrSettled = errors.New("delivery already settled")

// Delivery is one job handed to a consumer. It must be settled exactly once with Ack or Nack.
type Delivery interface {
	Job() *Job
	Ack() error
	// Nack without requeue dead-letters the job
	Nack(requeue bool) error
}

// JobQueue moves jobs from producers to consumers
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Consume streams deliveries until ctx is cancelled. Prefetch bounds unsettled deliveries
	// per consumer. Both channels are closed when consumption stops.
	Consume(ctx context.Context, prefetchCount int) (<-chan Delivery, <-chan error, error)
	HealthCheck(ctx context.Context) error
	Close() error
}
