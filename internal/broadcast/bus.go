// Package broadcast implements a bounded single-producer fan-out buffer.
//
// Every receiver owns its own cursor into a shared ring. The publisher
// never waits for receivers: once a receiver is more than the capacity
// behind, its next Recv reports a *LagError with the number of messages it
// missed and continues from the oldest message still retained.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Publish after Close, and by Recv once the bus is
// closed and the receiver has consumed everything still retained.
var ErrClosed = errors.New("broadcast: bus closed")

// LagError reports that a receiver was overrun by the publisher.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("broadcast: receiver lagged, %d messages skipped", e.Missed)
}

type Bus[T any] struct {
	mu        sync.Mutex
	buf       []T
	head      uint64 // sequence number of the next publish
	closed    bool
	notify    chan struct{}
	receivers int
}

func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus[T]{
		buf:    make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Publish stores v and wakes every waiting receiver. It never blocks on
// receivers.
func (b *Bus[T]) Publish(v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.buf[b.head%uint64(len(b.buf))] = v
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// Subscribe returns a receiver that sees only messages published after
// this call.
func (b *Bus[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers++
	return &Receiver[T]{bus: b, next: b.head}
}

// Close marks the bus closed. Receivers still drain retained messages.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

func (b *Bus[T]) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivers
}

func (b *Bus[T]) Capacity() int {
	return len(b.buf)
}

type Receiver[T any] struct {
	bus    *Bus[T]
	next   uint64
	closed bool
}

// Recv waits for the next message for this receiver.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	b := r.bus
	for {
		b.mu.Lock()
		if r.closed {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		if r.next < b.head {
			size := uint64(len(b.buf))
			if b.head > size && r.next < b.head-size {
				oldest := b.head - size
				missed := oldest - r.next
				r.next = oldest
				b.mu.Unlock()
				return zero, &LagError{Missed: missed}
			}
			v := b.buf[r.next%size]
			r.next++
			b.mu.Unlock()
			return v, nil
		}
		if b.closed {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-wait:
		}
	}
}

// Close detaches the receiver. Subsequent Recv calls return ErrClosed.
func (r *Receiver[T]) Close() {
	b := r.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	b.receivers--
}
