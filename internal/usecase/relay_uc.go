package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"telegram-relay-bot/internal/config"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/domain/model"
	"telegram-relay-bot/internal/domain/ports/adapter"
	"telegram-relay-bot/internal/infra/logging"
	"telegram-relay-bot/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// MaxMessageLength is the Telegram limit for one text message, in characters.
const MaxMessageLength = 4096

// unknownCommandLabel is the metrics label shared by every unrouted command.
const unknownCommandLabel = "/unknown"

const usersHeader = "id\tUsername\tFull name\tAdmin?\tBanned?\tTotal messages\n\n"

// FormSource yields the form document shown to regular users on /start.
type FormSource interface {
	Form() string
}

// Restarter accepts operator restart requests. The done notice goes to chatID
// once the new connection is live.
type Restarter interface {
	RequestRestart(chatID int64)
}

// Compile-time check
var _ RelayUseCase = (*relayUC)(nil)

// RelayUseCase routes one inbound event. It never fails: send and store
// problems are logged and counted.
type RelayUseCase interface {
	Handle(ctx context.Context, out adapter.Sender, ev model.Event)
}

type relayUC struct {
	users       UserUseCase
	form        FormSource
	restarter   Restarter
	messages    config.Messages
	maxMessages int64
	log         *zerolog.Logger

	routes map[string]commandHandler
}

// request is what every handler sees after the common prologue.
type request struct {
	out     adapter.Sender
	ev      model.Event
	profile model.UserProfile
	log     *zerolog.Logger
}

type commandHandler func(ctx context.Context, req request)

func NewRelayUseCase(
	users UserUseCase,
	form FormSource,
	restarter Restarter,
	messages config.Messages,
	maxMessages int,
	logger *zerolog.Logger,
) *relayUC {
	uc := &relayUC{
		users:       users,
		form:        form,
		restarter:   restarter,
		messages:    messages,
		maxMessages: int64(maxMessages),
		log:         logger,
	}
	uc.routes = uc.commandRoutes()
	return uc
}

func (u *relayUC) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":  u.handleStart,
		"chatid": u.handleChatID,

		// These handlers are wrapped in the adminOnly middleware.
		"users":         u.adminOnly(u.handleUsers),
		"ban":           u.adminOnly(u.handleBan),
		"unban":         u.adminOnly(u.handleUnban),
		"resetmessages": u.adminOnly(u.handleResetMessages),
		"restart":       u.adminOnly(u.handleRestart),
	}
}

// adminOnly drops commands from non-admin senders without a reply.
func (u *relayUC) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, req request) {
		if !req.profile.IsAdmin {
			metrics.IncAdminCommand(req.ev.Label(), "unauthorized")
			req.log.Info().Str("command", req.ev.Label()).Msg("admin command from non-admin ignored")
			return
		}
		metrics.IncAdminCommand(req.ev.Label(), "authorized")
		next(ctx, req)
	}
}

func (u *relayUC) Handle(ctx context.Context, out adapter.Sender, ev model.Event) {
	ctx = logging.WithTgID(ctx, ev.ChatID)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "RelayUC.Handle")()
	metrics.IncEvent(u.eventLabel(ev))

	req := request{out: out, ev: ev, log: log}
	req.profile = u.resolveProfile(ctx, ev, log)

	if req.profile.IsBanned {
		metrics.IncBannedBlocked()
		if notice := strings.TrimSpace(u.messages.Banned); notice != "" {
			u.sendSafe(ctx, req, ev.ChatID, notice)
		}
		// The chat id is still handed out to banned users.
		if ev.Kind == model.EventCommand && ev.Command == "chatid" {
			u.handleChatID(ctx, req)
		}
		return
	}

	if ev.Kind == model.EventText {
		u.handleText(ctx, req)
		return
	}
	handler, ok := u.routes[ev.Command]
	if !ok {
		log.Debug().Str("command", ev.Label()).Msg("unknown command ignored")
		return
	}
	handler(ctx, req)
}

// eventLabel keeps the events metric to the routed commands plus one bucket
// for everything else a sender may type.
func (u *relayUC) eventLabel(ev model.Event) string {
	if ev.Kind == model.EventCommand {
		if _, ok := u.routes[ev.Command]; !ok {
			return unknownCommandLabel
		}
	}
	return ev.Label()
}

// resolveProfile loads or creates the sender's profile and refreshes the
// display names. Store failures degrade to a transient default profile.
func (u *relayUC) resolveProfile(ctx context.Context, ev model.Event, log *zerolog.Logger) model.UserProfile {
	profile, err := u.users.GetOrCreate(ctx, ev.ChatID)
	if err != nil {
		log.Warn().Err(err).Msg("using transient profile")
		profile = model.NewUserProfile(ev.ChatID)
	}

	refreshed := profile
	if !refreshed.RefreshNames(ev.Username, ev.FullName) {
		return profile
	}
	updated, err := u.users.Update(ctx, ev.ChatID, func(p *model.UserProfile) {
		p.RefreshNames(ev.Username, ev.FullName)
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed names")
		return refreshed
	}
	return updated
}

func (u *relayUC) handleText(ctx context.Context, req request) {
	if req.profile.IsAdmin {
		return
	}

	updated, err := u.users.Update(ctx, req.profile.ID, func(p *model.UserProfile) {
		p.MessagesSentTotal++
	})
	if err != nil {
		req.log.Warn().Err(err).Msg("message dropped: counter not persisted")
		metrics.IncDropped()
		return
	}
	if updated.MessagesSentTotal > u.maxMessages {
		req.log.Info().Int64("messages_total", updated.MessagesSentTotal).Msg("quota exhausted, message dropped")
		metrics.IncDropped()
		return
	}

	relayed := updated.Signature() + "\n\n" + req.ev.Text
	for _, admin := range u.admins(ctx, req.log) {
		u.sendSafe(ctx, req, admin.ID, relayed)
	}
	metrics.IncRelayed()
	u.sendSafe(ctx, req, req.profile.ID, u.messages.Confirmation)
}

func (u *relayUC) handleStart(ctx context.Context, req request) {
	if req.profile.IsAdmin {
		u.sendSafe(ctx, req, req.ev.ChatID, u.messages.Admin)
		return
	}
	u.sendSafe(ctx, req, req.ev.ChatID, u.form.Form())
}

func (u *relayUC) handleChatID(ctx context.Context, req request) {
	u.sendSafe(ctx, req, req.ev.ChatID, strconv.FormatInt(req.ev.ChatID, 10))
}

func (u *relayUC) handleUsers(ctx context.Context, req request) {
	users, err := u.users.ListAll(ctx)
	if err != nil {
		req.log.Warn().Err(err).Msg("listing an empty collection")
		users = nil
	}
	for _, chunk := range splitMessage(FormatUsers(users), MaxMessageLength) {
		u.sendSafe(ctx, req, req.ev.ChatID, chunk)
	}
}

func (u *relayUC) handleBan(ctx context.Context, req request) {
	u.moderate(ctx, req, "ban", u.messages.BanConfirmation, func(p *model.UserProfile) {
		p.IsBanned = true
	})
}

func (u *relayUC) handleUnban(ctx context.Context, req request) {
	u.moderate(ctx, req, "unban", u.messages.UnbanConfirmation, func(p *model.UserProfile) {
		p.IsBanned = false
	})
}

func (u *relayUC) handleResetMessages(ctx context.Context, req request) {
	u.moderate(ctx, req, "resetmessages", u.messages.ResetConfirmation, func(p *model.UserProfile) {
		p.MessagesSentTotal = 0
	})
}

// moderate applies mutate to the user named by the single command argument.
func (u *relayUC) moderate(ctx context.Context, req request, action, confirmation string, mutate func(*model.UserProfile)) {
	target, ok, err := ParseTargetID(req.ev.Args)
	if !ok {
		return
	}
	if err != nil {
		u.sendSafe(ctx, req, req.ev.ChatID, err.Error())
		return
	}

	if _, err := u.users.Update(ctx, target, mutate); err != nil {
		req.log.Warn().Err(err).Str("action", action).Int64("target_id", target).Msg("moderation not applied")
		return
	}
	metrics.IncModeration(action)
	req.log.Info().Str("action", action).Int64("target_id", target).Msg("moderation applied")
	u.sendSafe(ctx, req, req.ev.ChatID, confirmation)
}

func (u *relayUC) handleRestart(ctx context.Context, req request) {
	u.sendSafe(ctx, req, req.ev.ChatID, u.messages.RestartStart)
	u.restarter.RequestRestart(req.ev.ChatID)
}

func (u *relayUC) admins(ctx context.Context, log *zerolog.Logger) []model.UserProfile {
	users, err := u.users.ListAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("no admins reachable")
		return nil
	}
	admins := make([]model.UserProfile, 0, 1)
	for _, p := range users {
		if p.IsAdmin {
			admins = append(admins, p)
		}
	}
	return admins
}

// sendSafe delivers text and swallows the error after logging it.
func (u *relayUC) sendSafe(ctx context.Context, req request, chatID int64, text string) {
	if text == "" {
		req.log.Debug().Int64("to", chatID).Msg("empty text not sent")
		return
	}
	if err := req.out.SendMessage(ctx, chatID, text); err != nil {
		metrics.IncSendFailure()
		req.log.Error().Err(err).Int64("to", chatID).Msg("send failed")
	}
}

// ParseTargetID reads the single user id argument of a moderation command.
// ok is false when no argument was given at all.
func ParseTargetID(args []string) (id int64, ok bool, err error) {
	switch len(args) {
	case 0:
		return 0, false, nil
	case 1:
	default:
		return 0, true, fmt.Errorf("%w: expected exactly one user id, got %d arguments", domain.ErrInvalidArgument, len(args))
	}
	id, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: user id %q is not an integer", domain.ErrInvalidArgument, args[0])
	}
	return id, true, nil
}

// FormatUsers renders the tab-separated /users listing. Flags print as
// True/False.
func FormatUsers(users []model.UserProfile) string {
	var b strings.Builder
	b.WriteString(usersHeader)
	for _, p := range users {
		fmt.Fprintf(&b, "%d\t@%s\t%s\t%s\t%s\t%d\n",
			p.ID, p.Username, p.FullName, boolText(p.IsAdmin), boolText(p.IsBanned), p.MessagesSentTotal)
	}
	return b.String()
}

func boolText(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// splitMessage cuts text into chunks of at most limit characters, breaking on
// line boundaries. A single line longer than limit is cut hard.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}
