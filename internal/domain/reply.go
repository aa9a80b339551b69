package domain

// ReplyRecord is the most recent bot-authored reply in a channel.
type ReplyRecord struct {
	ChannelID string
	MessageID string
	ThreadID  string
	Text      string
}
