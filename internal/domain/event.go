package domain

type EventKind string

const (
	EventMention      EventKind = "mention"
	EventPlainMessage EventKind = "plain_message"
)

// Event is a single inbound platform event. ThreadID is empty when the
// message was posted at channel root.
type Event struct {
	ChannelID string
	ThreadID  string
	MessageID string
	AuthorID  string
	BotID     string
	SubType   string
	RawText   string
	Kind      EventKind
}

// ReplyThread is the thread a reply to this event belongs in: the event's
// thread when it has one, otherwise the thread anchored at the event itself.
func (e Event) ReplyThread() string {
	if e.ThreadID != "" {
		return e.ThreadID
	}
	return e.MessageID
}

// PlatformMessage is a message as returned by history and thread fetches.
type PlatformMessage struct {
	ID       string
	ThreadID string
	AuthorID string
	BotID    string
	Text     string
}
