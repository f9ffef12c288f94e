package model

// EventKind tells the two inbound event variants apart.
type EventKind int

const (
	EventText EventKind = iota
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is one inbound interaction, already stripped of transport details.
// Command and Args are set for EventCommand, Text for EventText.
type Event struct {
	Kind     EventKind
	ChatID   int64
	Username string
	FullName string

	Command string
	Args    []string
	Text    string
}

func NewCommandEvent(chatID int64, command string, args ...string) Event {
	return Event{Kind: EventCommand, ChatID: chatID, Command: command, Args: args}
}

func NewTextEvent(chatID int64, text string) Event {
	return Event{Kind: EventText, ChatID: chatID, Text: text}
}

// From attaches the sender's display names.
func (e Event) From(username, fullName string) Event {
	e.Username = username
	e.FullName = fullName
	return e
}

// Label is the metrics/log label for the event: "/<command>" or "message".
func (e Event) Label() string {
	if e.Kind == EventCommand {
		return "/" + e.Command
	}
	return "message"
}
