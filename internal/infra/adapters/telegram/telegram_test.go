package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain/model"
)

const testToken = "123:test"

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeBotAPI is a minimal Bot API double serving getMe, getUpdates and
// sendMessage.
type fakeBotAPI struct {
	t *testing.T

	mu           sync.Mutex
	updates      []json.RawMessage // raw update objects, in update_id order
	sent         []sentMessage
	offsets      []int
	unauthorized bool
	failUpdates  bool
}

type sentMessage struct {
	ChatID int64
	Text   string
}

func newFakeBotAPI(t *testing.T) (*fakeBotAPI, *httptest.Server) {
	f := &fakeBotAPI{t: t}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")

	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "getMe":
		if f.unauthorized {
			writeAPIError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeResult(w, `{"id":1,"is_bot":true,"first_name":"Relay","username":"relay_bot"}`)
	case "getUpdates":
		if f.failUpdates {
			writeAPIError(w, http.StatusConflict, "Conflict: terminated by other getUpdates request")
			return
		}
		offset, _ := strconv.Atoi(r.FormValue("offset"))
		f.offsets = append(f.offsets, offset)
		var out []string
		for _, raw := range f.updates {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			_ = json.Unmarshal(raw, &head)
			if head.UpdateID >= offset {
				out = append(out, string(raw))
			}
		}
		if len(out) == 0 {
			// Keep the long poll from spinning.
			f.mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			f.mu.Lock()
		}
		writeResult(w, "["+strings.Join(out, ",")+"]")
	case "sendMessage":
		chatID, _ := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: r.FormValue("text")})
		writeResult(w, fmt.Sprintf(`{"message_id":1,"date":0,"chat":{"id":%d,"type":"private"},"text":%q}`, chatID, r.FormValue("text")))
	default:
		writeAPIError(w, http.StatusNotFound, "Not Found")
	}
}

func (f *fakeBotAPI) push(raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, json.RawMessage(raw))
}

func (f *fakeBotAPI) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeBotAPI) offsetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offsets)
}

// offsetsSince returns the offsets requested after the first n getUpdates calls.
func (f *fakeBotAPI) offsetsSince(n int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets[n:]...)
}

func writeResult(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":`+result+`}`)
}

func writeAPIError(w http.ResponseWriter, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, code, description)
}

func textUpdate(updateID int, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,`+
		`"chat":{"id":%d,"type":"private"},`+
		`"from":{"id":%d,"is_bot":false,"first_name":"Alice","last_name":"A","username":"alice"},`+
		`"text":%q}}`, updateID, updateID, chatID, chatID, text)
}

func commandUpdate(updateID int, chatID int64, text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,`+
		`"chat":{"id":%d,"type":"private"},`+
		`"from":{"id":%d,"is_bot":false,"first_name":"Alice","username":"alice"},`+
		`"text":%q,"entities":[{"type":"bot_command","offset":0,"length":%d}]}}`,
		updateID, updateID, chatID, chatID, text, len(cmd))
}

func testTransport(srv *httptest.Server) config.TransportConfig {
	return config.TransportConfig{
		Endpoint:    srv.URL + "/bot%s/%s",
		Timeout:     2 * time.Second,
		PollTimeout: time.Second,
	}
}

type eventSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *eventSink) add(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) all() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

func TestConnector_Connect(t *testing.T) {
	t.Run("should verify the token", func(t *testing.T) {
		_, srv := newFakeBotAPI(t)
		c := NewConnector(testTransport(srv), testToken, newTestLogger())

		conn, err := c.Connect(context.Background())

		require.NoError(t, err)
		assert.NoError(t, conn.Close())
	})

	t.Run("should fail on a rejected token", func(t *testing.T) {
		api, srv := newFakeBotAPI(t)
		api.unauthorized = true
		c := NewConnector(testTransport(srv), testToken, newTestLogger())

		_, err := c.Connect(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unauthorized")
	})

	t.Run("should honour a canceled context", func(t *testing.T) {
		_, srv := newFakeBotAPI(t)
		c := NewConnector(testTransport(srv), testToken, newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.Connect(ctx)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestConnection_Poll(t *testing.T) {
	t.Run("should deliver events and keep the offset across connections", func(t *testing.T) {
		// --- Arrange ---
		api, srv := newFakeBotAPI(t)
		api.push(textUpdate(10, 42, "hello"))
		api.push(commandUpdate(11, 100, "/restart"))
		c := NewConnector(testTransport(srv), testToken, newTestLogger())

		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		var sink eventSink
		done := make(chan error, 1)

		// --- Act ---
		go func() { done <- conn.Poll(ctx, sink.add) }()
		require.Eventually(t, func() bool { return len(sink.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
		cancel()

		// --- Assert ---
		assert.ErrorIs(t, <-done, context.Canceled)
		events := sink.all()
		assert.Equal(t, model.NewTextEvent(42, "hello").From("alice", "Alice A"), events[0])
		assert.Equal(t, model.NewCommandEvent(100, "restart").From("alice", "Alice"), events[1])

		// A new connection resumes after the last confirmed update.
		require.NoError(t, conn.Close())
		seen := api.offsetCount()
		conn2, err := c.Connect(context.Background())
		require.NoError(t, err)
		ctx2, cancel2 := context.WithCancel(context.Background())
		defer cancel2()
		var sink2 eventSink
		go func() { _ = conn2.Poll(ctx2, sink2.add) }()

		require.Eventually(t, func() bool { return api.offsetCount() >= seen+2 }, 2*time.Second, 5*time.Millisecond)
		for _, off := range api.offsetsSince(seen) {
			assert.Equal(t, 12, off)
		}
		assert.Empty(t, sink2.all())
	})

	t.Run("should return transport errors", func(t *testing.T) {
		api, srv := newFakeBotAPI(t)
		c := NewConnector(testTransport(srv), testToken, newTestLogger())
		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		api.mu.Lock()
		api.failUpdates = true
		api.mu.Unlock()

		err = conn.Poll(context.Background(), func(model.Event) {})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Conflict")
	})

	t.Run("should stop when the connection is closed", func(t *testing.T) {
		_, srv := newFakeBotAPI(t)
		c := NewConnector(testTransport(srv), testToken, newTestLogger())
		conn, err := c.Connect(context.Background())
		require.NoError(t, err)
		done := make(chan error, 1)

		go func() { done <- conn.Poll(context.Background(), func(model.Event) {}) }()
		require.NoError(t, conn.Close())

		select {
		case err := <-done:
			assert.True(t, errors.Is(err, ErrConnectionClosed))
		case <-time.After(2 * time.Second):
			t.Fatal("poll did not return after Close")
		}
	})
}

func TestConnection_SendMessage(t *testing.T) {
	t.Run("should send plain text", func(t *testing.T) {
		api, srv := newFakeBotAPI(t)
		conn, err := NewConnector(testTransport(srv), testToken, newTestLogger()).Connect(context.Background())
		require.NoError(t, err)

		require.NoError(t, conn.SendMessage(context.Background(), 42, "line 1\nline\t2"))

		assert.Equal(t, []sentMessage{{ChatID: 42, Text: "line 1\nline\t2"}}, api.sentMessages())
	})

	t.Run("should keep sending after the connection is closed", func(t *testing.T) {
		// --- Arrange ---
		api, srv := newFakeBotAPI(t)
		conn, err := NewConnector(testTransport(srv), testToken, newTestLogger()).Connect(context.Background())
		require.NoError(t, err)
		require.NoError(t, conn.Close())

		// --- Act ---
		err = conn.SendMessage(context.Background(), 42, "late")

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, []sentMessage{{ChatID: 42, Text: "late"}}, api.sentMessages())
	})

	t.Run("should honour a canceled context", func(t *testing.T) {
		api, srv := newFakeBotAPI(t)
		conn, err := NewConnector(testTransport(srv), testToken, newTestLogger()).Connect(context.Background())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = conn.SendMessage(ctx, 42, "never")

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, api.sentMessages())
	})
}

func decodeUpdate(t *testing.T, raw string) tgbotapi.Update {
	t.Helper()
	var up tgbotapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &up))
	return up
}

func TestToEvent(t *testing.T) {
	t.Run("should convert text messages", func(t *testing.T) {
		ev, ok := toEvent(decodeUpdate(t, textUpdate(1, 42, "hi there")), "relay_bot")

		require.True(t, ok)
		assert.Equal(t, model.EventText, ev.Kind)
		assert.Equal(t, int64(42), ev.ChatID)
		assert.Equal(t, "hi there", ev.Text)
		assert.Equal(t, "Alice A", ev.FullName)
	})

	t.Run("should lower-case commands and split arguments", func(t *testing.T) {
		ev, ok := toEvent(decodeUpdate(t, commandUpdate(1, 100, "/BAN  42   ")), "relay_bot")

		require.True(t, ok)
		assert.Equal(t, model.EventCommand, ev.Kind)
		assert.Equal(t, "ban", ev.Command)
		assert.Equal(t, []string{"42"}, ev.Args)
	})

	t.Run("should accept commands addressed to this bot", func(t *testing.T) {
		ev, ok := toEvent(decodeUpdate(t, commandUpdate(1, 100, "/start@Relay_Bot")), "relay_bot")

		require.True(t, ok)
		assert.Equal(t, "start", ev.Command)
	})

	t.Run("should ignore commands addressed to another bot", func(t *testing.T) {
		_, ok := toEvent(decodeUpdate(t, commandUpdate(1, 100, "/start@otherbot")), "relay_bot")

		assert.False(t, ok)
	})

	t.Run("should ignore updates without text", func(t *testing.T) {
		_, ok := toEvent(decodeUpdate(t, `{"update_id":1,"message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`), "relay_bot")
		assert.False(t, ok)

		_, ok = toEvent(decodeUpdate(t, `{"update_id":2,"edited_message":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"},"text":"x"}}`), "relay_bot")
		assert.False(t, ok)
	})
}
