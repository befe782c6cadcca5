// Package room provides the Room and Player model and the registry of live
// rooms keyed by shareable code.
package room

import (
	"fmt"
	"sync"
)

// Outbox routes server events to a buffered channel, bridging the game core
// to the websocket write pump. The write pump is the single consumer.
type Outbox struct {
	connID string
	events chan any
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection ID.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an Outbox with an open events channel.
func NewOutbox(connID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		connID: connID,
		events: make(chan any, bufferSize),
	}
}

// ConnID returns the owning connection's identifier.
func (o *Outbox) ConnID() string {
	return o.connID
}

// Push enqueues an event for delivery.
//
// Precondition: event must be JSON-marshalable.
// Postcondition: The event is enqueued, or an error if the outbox is closed
// or full. A full outbox means the client is too slow to keep up; the event
// is dropped rather than blocking the room.
func (o *Outbox) Push(event any) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.events <- event:
		return nil
	default:
		return fmt.Errorf("outbox %s event buffer full", o.connID)
	}
}

// Events returns the read-only events channel.
// The websocket write pump reads from this channel and serializes each
// event to the client.
func (o *Outbox) Events() <-chan any {
	return o.events
}

// Close marks the outbox as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an
// error. Close is idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
