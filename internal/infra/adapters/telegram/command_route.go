package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-relay-bot/internal/domain/model"
)

// toEvent converts a Bot API update into an inbound event. Only messages
// carrying text are kept; commands addressed to another bot are dropped.
func toEvent(up tgbotapi.Update, self string) (model.Event, bool) {
	msg := up.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return model.Event{}, false
	}

	username, fullName := senderNames(msg)
	if !msg.IsCommand() {
		return model.NewTextEvent(msg.Chat.ID, msg.Text).From(username, fullName), true
	}

	if _, target, found := strings.Cut(msg.CommandWithAt(), "@"); found && !strings.EqualFold(target, self) {
		return model.Event{}, false
	}
	var args []string
	if fields := strings.Fields(msg.CommandArguments()); len(fields) > 0 {
		args = fields
	}
	ev := model.NewCommandEvent(msg.Chat.ID, strings.ToLower(msg.Command()), args...)
	return ev.From(username, fullName), true
}

func senderNames(msg *tgbotapi.Message) (username, fullName string) {
	if u := msg.From; u != nil {
		return u.UserName, joinName(u.FirstName, u.LastName)
	}
	return msg.Chat.UserName, joinName(msg.Chat.FirstName, msg.Chat.LastName)
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
