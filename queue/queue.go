// Package queue is the submission intake transport: receive at most one
// message, process, delete. Delivery is at-least-once; a message not deleted
// before its visibility timeout expires is redelivered.
package queue

import "context"

type Message struct {
	// Receipt identifies this delivery for deletion.
	Receipt string
	Body    []byte
}

type Queue interface {
	// Receive returns at most one visible message, or nil when none is due.
	Receive(ctx context.Context) (*Message, error)
	// Delete acknowledges a delivery; the message is never seen again.
	Delete(ctx context.Context, receipt string) error
}
