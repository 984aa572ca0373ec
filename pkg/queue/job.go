package queue

import "context"

// Job handles one message type taken off the queue.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
