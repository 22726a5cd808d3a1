package mq

import "context"

// MessageQueue carries background jobs between the API and the workers.
type MessageQueue interface {
	Send(ctx context.Context, body string) (string, error)
	Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	// Receipt handle, required to delete the message
	Receipt string
	Body    string
	// How many times the message has been handed out, including this one
	ReceiveCount int
}
