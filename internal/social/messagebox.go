// Package social implements the per-identity mailbox used for
// agent-to-agent messages.
//
// Delivery is at-most-once: Receive marks what it returns as delivered in
// the same transaction, so a recipient that crashes after Receive never sees
// those messages again.
package social

import (
	"context"
	"errors"
	"fmt"

	"webbot/internal/logging"
	"webbot/internal/store"
)

// MaxBodyBytes bounds a single message body.
const MaxBodyBytes = 64 * 1024

// ErrInvalidMessage is returned by Send for messages that cannot be stored.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a delivered inter-agent message.
type Message = store.Message

// Backend is the persistence the mailbox needs.
type Backend interface {
	InsertMessage(ctx context.Context, m *store.Message) error
	TakeUndelivered(ctx context.Context, to string) ([]store.Message, error)
	CountUndelivered(ctx context.Context, to string) (int, error)
}

// MessageBox sends and receives messages between identities.
type MessageBox struct {
	backend Backend
}

// NewMessageBox returns a mailbox over backend.
func NewMessageBox(backend Backend) *MessageBox {
	return &MessageBox{backend: backend}
}

// Send stores a message for to. An empty body is a valid message.
func (b *MessageBox) Send(ctx context.Context, from, to, body string) error {
	switch {
	case from == "" || to == "":
		return fmt.Errorf("%w: sender and recipient are required", ErrInvalidMessage)
	case len(body) > MaxBodyBytes:
		return fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidMessage, MaxBodyBytes)
	}

	if err := b.backend.InsertMessage(ctx, &store.Message{From: from, To: to, Content: body}); err != nil {
		return err
	}
	logging.Social("Message sent from %s to %s", from, to)
	return nil
}

// Receive returns every undelivered message for identity oldest first and
// marks them delivered. A second call returns nothing new.
func (b *MessageBox) Receive(ctx context.Context, identity string) ([]Message, error) {
	msgs, err := b.backend.TakeUndelivered(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		logging.Social("%s received %d message(s)", identity, len(msgs))
	}
	return msgs, nil
}

// Pending counts undelivered messages without marking them.
func (b *MessageBox) Pending(ctx context.Context, identity string) (int, error) {
	return b.backend.CountUndelivered(ctx, identity)
}
