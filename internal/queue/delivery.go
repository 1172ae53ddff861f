package queue

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// acknowledger is the part of amqp.Delivery a settled job needs
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// amqpDelivery pairs a decoded job with its broker delivery
type amqpDelivery struct {
	job *Job
	ack acknowledger

	mu      sync.Mutex
	settled bool
}

func newDelivery(job *Job, d amqp.Delivery) *amqpDelivery {
	return &amqpDelivery{job: job, ack: d}
}

func (d *amqpDelivery) Job() *Job { return d.job }

func (d *amqpDelivery) Ack() error {
	return d.settle(func() error { return d.ack.Ack(false) })
}

func (d *amqpDelivery) Nack(requeue bool) error {
	return d.settle(func() error { return d.ack.Nack(false, requeue) })
}

func (d *amqpDelivery) settle(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrSettled
	}
	d.settled = true
	return fn()
}

var _ Delivery = (*amqpDelivery)(nil)
