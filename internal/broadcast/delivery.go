package broadcast

import (
	"context"
	"errors"
)

var ErrPending = errors.New("delivery still pending")

// Delivery is the outcome of one publish. Callers wanting fire-and-forget ignore it.
type Delivery struct {
	done chan struct{}
	err  error
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

func failedDelivery(err error) *Delivery {
	d := newDelivery()
	d.complete(err)
	return d
}

func (d *Delivery) complete(err error) {
	d.err = err
	close(d.done)
}

// Done is closed once the transport has accepted or refused the frame.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Err returns the publish error once Done is closed, and ErrPending before that.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return ErrPending
	}
}

// Wait blocks until the delivery completes or ctx ends.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
