package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/adapter"
	"telegram-relay-bot/internal/infra/logging"
	"telegram-relay-bot/internal/infra/metrics"
	"telegram-relay-bot/internal/infra/worker"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// State is the supervisor lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateConnecting
	StatePolling
)

var allStates = []string{StateStopped.String(), StateConnecting.String(), StatePolling.String()}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Handler processes one inbound event, replying through out.
type Handler func(ctx context.Context, out adapter.Sender, ev model.Event)

// errRestartRequested marks a poll torn down on purpose.
var errRestartRequested = errors.New("restart requested")

const defaultNoticeTimeout = 30 * time.Second

type SupervisorConfig struct {
	FormFile      string
	RestartDone   string
	RestartDelay  time.Duration
	Workers       int
	NoticeTimeout time.Duration
}

// NewSupervisorConfig picks the supervisor settings out of the bot config.
func NewSupervisorConfig(cfg *config.Config) SupervisorConfig {
	return SupervisorConfig{
		FormFile:     cfg.FormFile,
		RestartDone:  cfg.Messages.RestartDone,
		RestartDelay: cfg.Transport.RestartDelay,
		Workers:      cfg.Transport.Workers,
	}
}

type restartTicket struct {
	id     string
	chatID int64
	conn   chan adapter.Sender // one-shot, buffered
}

// Supervisor keeps one transport connection alive, reconnecting after
// failures and on operator request. It owns the form document and the
// restart state.
type Supervisor struct {
	connector adapter.Connector
	cfg       SupervisorConfig
	log       *zerolog.Logger

	state atomic.Int32

	mu         sync.Mutex
	runCtx     context.Context
	form       string
	pending    []restartTicket
	cancelPoll context.CancelFunc

	out  *liveSender
	wake chan struct{}
}

func NewSupervisor(connector adapter.Connector, cfg SupervisorConfig, logger *zerolog.Logger) *Supervisor {
	if cfg.NoticeTimeout <= 0 {
		cfg.NoticeTimeout = defaultNoticeTimeout
	}
	s := &Supervisor{
		connector: connector,
		cfg:       cfg,
		log:       logger,
		out:       newLiveSender(),
		wake:      make(chan struct{}, 1),
	}
	s.setState(StateStopped)
	return s
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

// Form returns the form document loaded by the latest connect phase.
func (s *Supervisor) Form() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// RequestRestart tears the current connection down and schedules a notice
// to chatID on the next one. Requests made before that connection is live
// share a single reconnect.
func (s *Supervisor) RequestRestart(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		s.log.Warn().Int64("tg_id", chatID).Msg("restart requested while supervisor is not running")
		return
	}

	ticket := restartTicket{id: ulid.Make().String(), chatID: chatID, conn: make(chan adapter.Sender, 1)}
	s.pending = append(s.pending, ticket)
	go s.deliverNotice(s.runCtx, ticket)

	metrics.IncRestartRequest()
	s.log.Info().Str("ticket", ticket.id).Int64("tg_id", chatID).Msg("restart requested")

	if s.cancelPoll != nil {
		s.cancelPoll()
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the connect/poll loop until ctx is canceled. Events are
// dispatched to handler on a worker pool shared by all connections, and
// handlers reply through whichever connection is live when they send.
func (s *Supervisor) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.runCtx = nil
		s.mu.Unlock()
		s.setState(StateStopped)
	}()

	pool := worker.NewPool(s.cfg.Workers, s.log)
	pool.Start(ctx)
	defer pool.Stop()

	for {
		err := s.cycle(ctx, pool, handler)
		if ctx.Err() != nil {
			s.log.Info().Msg("supervisor stopped")
			return nil
		}
		if errors.Is(err, errRestartRequested) {
			metrics.IncReconnect("restart")
			s.log.Info().Msg("restarting connection")
			continue
		}

		metrics.IncReconnect("error")
		s.log.Error().Err(err).Dur("retry_in", s.cfg.RestartDelay).Msg("connection failed")
		if !s.waitRetry(ctx) {
			s.log.Info().Msg("supervisor stopped")
			return nil
		}
	}
}

// cycle is one Connecting + Polling phase. It always returns non-nil.
func (s *Supervisor) cycle(ctx context.Context, pool *worker.Pool, handler Handler) error {
	s.setState(StateConnecting)

	form, err := s.loadForm()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.form = form
	s.mu.Unlock()

	conn, err := s.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close connection")
		}
	}()

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelPoll = cancel
	tickets := s.pending
	s.pending = nil
	select {
	case <-s.wake:
	default:
	}
	s.mu.Unlock()

	s.out.set(conn)
	defer s.out.clear()

	s.setState(StatePolling)
	s.log.Info().Msg("polling")
	for _, t := range tickets {
		t.conn <- conn
	}

	err = conn.Poll(pollCtx, func(ev model.Event) {
		s.dispatch(ctx, pool, handler, s.out, ev)
	})

	s.mu.Lock()
	s.cancelPoll = nil
	s.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case pollCtx.Err() != nil:
		return errRestartRequested
	case err == nil:
		return errors.New("poll ended without error")
	default:
		return fmt.Errorf("poll: %w", err)
	}
}

func (s *Supervisor) dispatch(ctx context.Context, pool *worker.Pool, handler Handler, out adapter.Sender, ev model.Event) {
	traceID := uuid.NewString()
	err := pool.Submit(ctx, func(taskCtx context.Context) error {
		handler(logging.WithTraceID(taskCtx, traceID), out, ev)
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("trace_id", traceID).Str("event", ev.Label()).Msg("event not dispatched")
	}
}

// waitRetry sleeps for the restart delay. It returns early, true, when a
// restart is requested and false when ctx is done.
func (s *Supervisor) waitRetry(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.RestartDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.wake:
		return true
	}
}

func (s *Supervisor) deliverNotice(ctx context.Context, t restartTicket) {
	log := s.log.With().Str("ticket", t.id).Int64("tg_id", t.chatID).Logger()

	var out adapter.Sender
	select {
	case <-ctx.Done():
		metrics.IncRestartNotice("abandoned")
		log.Info().Msg("restart notice abandoned")
		return
	case out = <-t.conn:
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.NoticeTimeout)
	defer cancel()
	if err := out.SendMessage(sendCtx, t.chatID, s.cfg.RestartDone); err != nil {
		metrics.IncRestartNotice("failed")
		log.Warn().Err(err).Msg("restart notice not delivered")
		return
	}
	metrics.IncRestartNotice("sent")
	log.Info().Msg("restart completed")
}

func (s *Supervisor) loadForm() (string, error) {
	b, err := os.ReadFile(s.cfg.FormFile)
	if err != nil {
		return "", fmt.Errorf("load form: %w", err)
	}
	return config.ExpandEscapes(string(b)), nil
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetSupervisorState(st.String(), allStates...)
}
