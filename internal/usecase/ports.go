package usecase

import (
	"context"

	"slack-responder/internal/domain"
)

// LLMClient is the completion capability. Implementations strip reasoning
// spans before returning.
type LLMClient interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

type ThreadReader interface {
	// ThreadReplies returns up to limit messages of a thread, oldest first,
	// including the thread's root message.
	ThreadReplies(ctx context.Context, channelID, threadID string, limit int) ([]domain.PlatformMessage, error)
}

type ChannelReader interface {
	JoinChannel(ctx context.Context, channelID string) error
	// ChannelHistory returns up to limit of the channel's most recent
	// messages, oldest first.
	ChannelHistory(ctx context.Context, channelID string, limit int) ([]domain.PlatformMessage, error)
	UserName(ctx context.Context, userID string) (string, error)
	// BotName resolves an integration's bot id, for messages with no user.
	BotName(ctx context.Context, botID string) (string, error)
}

// Platform is every messaging-platform call the responder makes.
type Platform interface {
	ThreadReader
	ChannelReader
	PostMessage(ctx context.Context, channelID, threadID, text string) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddReaction(ctx context.Context, channelID, messageID, name string) error
	RemoveReaction(ctx context.Context, channelID, messageID, name string) error
	Permalink(ctx context.Context, channelID, messageID string) (string, error)
}

// Ledger is the per-channel record of the bot's most recent reply.
// Implementations must be safe for concurrent use.
type Ledger interface {
	Record(ctx context.Context, rec domain.ReplyRecord) error
	Get(ctx context.Context, channelID string) (domain.ReplyRecord, bool, error)
	// ClearIf removes the record only if it still names messageID.
	ClearIf(ctx context.Context, channelID, messageID string) error
}

// Identity is the bot's own identity, resolved once at startup.
type Identity struct {
	UserID string
	BotID  string
}

func (id Identity) authored(m domain.PlatformMessage) bool {
	if id.UserID != "" && m.AuthorID == id.UserID {
		return true
	}
	return id.BotID != "" && m.BotID == id.BotID
}
