package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"slack-responder/internal/domain"
)

const defaultThreadLimit = 20

// ThreadContextBuilder turns a thread's history into role-tagged turns for
// the generator.
type ThreadContextBuilder struct {
	threads       ThreadReader
	identity      Identity
	commentMarker string
	limit         int
}

func NewThreadContextBuilder(threads ThreadReader, identity Identity, commentMarker string, limit int) (*ThreadContextBuilder, error) {
	if threads == nil {
		return nil, errors.New("usecase: thread reader must not be nil")
	}
	if limit <= 0 {
		limit = defaultThreadLimit
	}
	return &ThreadContextBuilder{
		threads:       threads,
		identity:      identity,
		commentMarker: commentMarker,
		limit:         limit,
	}, nil
}

// Build returns the thread's turns oldest first, leaving out excludeID (the
// triggering message), empty messages and comment lines. A failed fetch
// yields no turns.
func (b *ThreadContextBuilder) Build(ctx context.Context, channelID, threadID, excludeID string) []domain.ChatMessage {
	if threadID == "" {
		return nil
	}
	msgs, err := b.threads.ThreadReplies(ctx, channelID, threadID, b.limit)
	if err != nil {
		slog.WarnContext(ctx, "thread context unavailable, continuing without history",
			"err", newError(ErrorContextFetch, "thread_replies", err), "thread_id", threadID)
		return nil
	}

	turns := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" && m.ID == excludeID {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" || isComment(text, b.commentMarker) {
			continue
		}
		if b.identity.authored(m) {
			turns = append(turns, domain.ChatMessage{Role: domain.RoleAssistant, Content: m.Text})
			continue
		}
		text = NormalizeText(text, b.identity.UserID)
		if text == "" {
			continue
		}
		turns = append(turns, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	}
	return turns
}
