// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"

	"telegram-relay-bot/internal/domain/model"
)

// Sender delivers a plain text message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Connection is one live session with the chat transport.
// Poll blocks, handing every inbound event to handle, until ctx is canceled
// or the transport fails.
type Connection interface {
	Sender
	Poll(ctx context.Context, handle func(model.Event)) error
	Close() error
}

// Connector opens fresh transport connections for the supervisor.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}
