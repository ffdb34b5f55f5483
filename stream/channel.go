package stream

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrClosed is returned when sending to or receiving from a closed channel.
var ErrClosed = errors.New("channel closed")

// Channel is a bounded channel whose operations respect both the caller's
// context and the context the channel was created with.
type Channel[T any] struct {
	channel    chan T
	context    context.Context
	bufferSize int
	closed     atomic.Int32
}

func NewChannel[T any](ctx context.Context, bufferSize int) *Channel[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Channel[T]{
		channel:    make(chan T, bufferSize),
		context:    ctx,
		bufferSize: bufferSize,
	}
}

// Send blocks until the message is queued or either context is done. The
// caller must not Send concurrently with Close.
func (c *Channel[T]) Send(ctx context.Context, message T) error {
	if c.IsClosed() {
		return ErrClosed
	}

	select {
	case c.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.context.Done():
		return c.context.Err()
	}
}

// Deliver blocks until the message is queued or ctx is done. Unlike Send it
// ignores the channel's own context, so a message can still reach a reader
// draining after its owner gave up.
func (c *Channel[T]) Deliver(ctx context.Context, message T) error {
	if c.IsClosed() {
		return ErrClosed
	}

	select {
	case c.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next message. Buffered messages remain readable after
// Close; ErrClosed is returned once they are drained.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case message, ok := <-c.channel:
		if !ok {
			return zero, ErrClosed
		}
		return message, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Channel[T]) TryReceive() (T, bool) {
	select {
	case message, ok := <-c.channel:
		return message, ok
	default:
		var zero T
		return zero, false
	}
}

// C exposes the receive side for range loops and selects.
func (c *Channel[T]) C() <-chan T {
	return c.channel
}

func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(0, 1) {
		close(c.channel)
	}
}

func (c *Channel[T]) IsClosed() bool {
	return c.closed.Load() == 1
}

func (c *Channel[T]) BufferSize() int {
	return c.bufferSize
}

func (c *Channel[T]) QueueLength() int {
	return len(c.channel)
}
