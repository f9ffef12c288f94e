package application

import (
	"context"
	"sync"

	"telegram-relay-bot/internal/domain/ports/adapter"
)

// liveSender forwards sends to whichever connection is current. Between
// connections a send waits for the next one. A send that fails on a
// connection which has since been replaced is retried on its successor.
type liveSender struct {
	mu    sync.Mutex
	conn  adapter.Sender
	ready chan struct{} // closed once conn is set
}

func newLiveSender() *liveSender {
	return &liveSender{ready: make(chan struct{})}
}

func (l *liveSender) set(conn adapter.Sender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		close(l.ready)
	}
	l.conn = conn
}

func (l *liveSender) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return
	}
	l.conn = nil
	l.ready = make(chan struct{})
}

func (l *liveSender) current() (adapter.Sender, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn, l.ready
}

func (l *liveSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	for {
		conn, ready := l.current()
		if conn == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ready:
				continue
			}
		}

		err := conn.SendMessage(ctx, chatID, text)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if now, _ := l.current(); now == conn {
			return err
		}
	}
}
