// Package notification delivers email-style messages to users through a
// pluggable transport, asynchronously and without ever failing the caller.
package notification

import (
	"context"
	"errors"
)

// Message is a rendered notification ready for a transport.
type Message struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	BodyHTML       string `json:"body_html"`
}

// Recipient identifies who a message is addressed to.
type Recipient struct {
	Name  string
	Email string
}

// Sender delivers a single message. Implementations must be safe for
// concurrent use by dispatcher workers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

var (
	// ErrNoRecipient is returned for a message without an address.
	ErrNoRecipient = errors.New("notification has no recipient")
	// ErrQueueFull is returned by Dispatcher.Enqueue when the job was dropped.
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed is returned by Dispatcher.Enqueue after Close.
	ErrClosed = errors.New("notification dispatcher closed")
)

func (m Message) validate() error {
	if m.RecipientEmail == "" {
		return ErrNoRecipient
	}
	return nil
}
