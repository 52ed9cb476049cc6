package queue

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by Send after the queue has been shut down.
	ErrClosed = errors.New("queue closed")
	// ErrNoMessage is returned by Receive when the wait elapsed with nothing to deliver.
	ErrNoMessage = errors.New("no message")
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Handler processes one raw message body.
type Handler func(ctx context.Context, body string) error
