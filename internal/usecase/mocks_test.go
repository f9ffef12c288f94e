// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain/model"

	"github.com/rs/zerolog"
)

// --- Mock UserStore

// memUserStore is a small in-memory implementation used by unit tests.
type memUserStore struct {
	mu       sync.Mutex
	users    []model.UserProfile
	loadErr  error // used by tests to simulate an unreadable store
	storeErr error // used by tests to simulate write failures
	stores   int
}

func newMemUserStore(seed ...model.UserProfile) *memUserStore {
	return &memUserStore{users: append([]model.UserProfile(nil), seed...)}
}

func (m *memUserStore) Load(ctx context.Context) ([]model.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]model.UserProfile{}, m.users...), nil
}

func (m *memUserStore) Store(ctx context.Context, users []model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stores++
	m.users = append([]model.UserProfile{}, users...)
	return nil
}

func (m *memUserStore) get(id int64) (model.UserProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, true
		}
	}
	return model.UserProfile{}, false
}

func (m *memUserStore) storeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stores
}

// --- Mock Sender

type sentMessage struct {
	ChatID int64
	Text   string
}

var errSendFailed = errors.New("send failed")

type recordingSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failTo map[int64]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failTo: make(map[int64]bool)}
}

func (s *recordingSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTo[chatID] {
		return errSendFailed
	}
	s.sent = append(s.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func (s *recordingSender) to(chatID int64) []string {
	var texts []string
	for _, m := range s.messages() {
		if m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// --- Mock Form / Restarter

type staticForm string

func (f staticForm) Form() string { return string(f) }

type fakeRestarter struct {
	mu       sync.Mutex
	requests []int64
}

func (r *fakeRestarter) RequestRestart(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, chatID)
}

func (r *fakeRestarter) calls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.requests...)
}

// testMessages are the reply templates used across the relay tests.
var testMessages = config.Messages{
	Confirmation:      "Thanks, we got it.",
	Banned:            "  You are banned.  ",
	BanConfirmation:   "User banned.",
	UnbanConfirmation: "User unbanned.",
	ResetConfirmation: "Counter reset.",
	Admin:             "Admin commands: /users /ban /unban /resetmessages /restart",
	RestartStart:      "Restarting...",
	RestartDone:       "Restarted.",
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
