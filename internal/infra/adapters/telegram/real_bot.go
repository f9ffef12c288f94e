package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/adapter"
	"telegram-relay-bot/internal/infra/logging"
)

var (
	_ adapter.Connector  = (*Connector)(nil)
	_ adapter.Connection = (*Connection)(nil)
)

// ErrConnectionClosed is returned by Poll once the Connection is closed.
var ErrConnectionClosed = errors.New("telegram connection closed")

const updatesLimit = 100

// Connector opens Bot API sessions. It keeps the update offset across
// connections so nothing confirmed on one session is delivered again on the
// next.
type Connector struct {
	cfg   config.TransportConfig
	token string
	log   *zerolog.Logger

	mu     sync.Mutex
	offset int
}

func NewConnector(cfg config.TransportConfig, token string, logger *zerolog.Logger) *Connector {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultEndpoint
	}
	// Route the library's own log lines through zerolog.
	_ = tgbotapi.SetLogger(logging.PrintfLogger{Log: logger, Level: zerolog.DebugLevel})
	return &Connector{cfg: cfg, token: token, log: logger}
}

// Connect builds a client and verifies the token with getMe.
func (c *Connector) Connect(ctx context.Context) (adapter.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: c.cfg.Timeout + c.cfg.PollTimeout}

	type result struct {
		bot *tgbotapi.BotAPI
		err error
	}
	done := make(chan result, 1)
	go func() {
		bot, err := tgbotapi.NewBotAPIWithClient(c.token, c.cfg.Endpoint, client)
		done <- result{bot: bot, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("telegram getMe: %w", r.err)
		}
		c.log.Info().Str("bot", r.bot.Self.UserName).Msg("connected to telegram")
		return &Connection{bot: r.bot, connector: c, closed: make(chan struct{})}, nil
	}
}

func (c *Connector) nextOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

func (c *Connector) confirm(updateID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if updateID >= c.offset {
		c.offset = updateID + 1
	}
}

// Connection is one live Bot API session.
type Connection struct {
	bot       *tgbotapi.BotAPI
	connector *Connector

	closeOnce sync.Once
	closed    chan struct{}
}

// Poll long-polls getUpdates until ctx is done, Close is called or a request
// fails. A request still in flight when Poll returns is abandoned and its
// result discarded.
func (c *Connection) Poll(ctx context.Context, handle func(model.Event)) error {
	timeout := int(c.connector.cfg.PollTimeout / time.Second)
	self := c.bot.Self.UserName

	for {
		u := tgbotapi.NewUpdate(c.connector.nextOffset())
		u.Limit = updatesLimit
		u.Timeout = timeout

		updates, err := c.getUpdates(ctx, u)
		if err != nil {
			return err
		}
		for _, up := range updates {
			c.connector.confirm(up.UpdateID)
			ev, ok := toEvent(up, self)
			if !ok {
				continue
			}
			handle(ev)
		}
	}
}

func (c *Connection) getUpdates(ctx context.Context, u tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	type result struct {
		updates []tgbotapi.Update
		err     error
	}
	done := make(chan result, 1)
	go func() {
		updates, err := c.bot.GetUpdates(u)
		done <- result{updates: updates, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrConnectionClosed
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("telegram getUpdates: %w", r.err)
		}
		return r.updates, nil
	}
}

// SendMessage sends plain text to chatID. It keeps working after Close, so
// replies to updates already confirmed on this session still go out.
func (c *Connection) SendMessage(ctx context.Context, chatID int64, text string) error {
	// Support early cancellation
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage to %d: %w", chatID, err)
	}
	return nil
}

// Close stops Poll. The underlying client holds no session state.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
