package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"slack-responder/internal/domain"
)

const defaultDigestLimit = 100

// DigestBuilder produces an attributed transcript of a channel's recent
// messages for summarisation.
type DigestBuilder struct {
	channels ChannelReader
	limit    int
}

func NewDigestBuilder(channels ChannelReader, limit int) (*DigestBuilder, error) {
	if channels == nil {
		return nil, errors.New("usecase: channel reader must not be nil")
	}
	if limit <= 0 {
		limit = defaultDigestLimit
	}
	return &DigestBuilder{channels: channels, limit: limit}, nil
}

// Build joins channelID (best effort), reads its history and attributes each
// non-empty message to its author's display name. Each author is resolved
// at most once per call. A failed history fetch yields an empty digest.
func (b *DigestBuilder) Build(ctx context.Context, channelID string) []domain.DigestLine {
	if err := b.channels.JoinChannel(ctx, channelID); err != nil {
		slog.InfoContext(ctx, "join channel failed, reading anyway",
			"err", newError(ErrorPlatformAPI, "join_channel", err), "target_channel", channelID)
	}

	msgs, err := b.channels.ChannelHistory(ctx, channelID, b.limit)
	if err != nil {
		slog.WarnContext(ctx, "channel history unavailable, digest is empty",
			"err", newError(ErrorContextFetch, "channel_history", err), "target_channel", channelID)
		return nil
	}

	names := make(map[string]string)
	lines := make([]domain.DigestLine, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		key := m.AuthorID
		if key == "" && m.BotID != "" {
			key = "bot:" + m.BotID
		}
		name, ok := names[key]
		if !ok {
			if m.AuthorID == "" && m.BotID != "" {
				name = b.resolveBot(ctx, m.BotID)
			} else {
				name = b.resolve(ctx, m.AuthorID)
			}
			names[key] = name
		}
		lines = append(lines, domain.DigestLine{Attribution: name, Content: text})
	}
	return lines
}

func (b *DigestBuilder) resolve(ctx context.Context, userID string) string {
	if userID == "" {
		return fallbackLabel("unknown")
	}
	name, err := b.channels.UserName(ctx, userID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			slog.DebugContext(ctx, "user lookup failed", "user_id", userID, "err", err)
		}
		return fallbackLabel(userID)
	}
	return strings.TrimSpace(name)
}

func (b *DigestBuilder) resolveBot(ctx context.Context, botID string) string {
	name, err := b.channels.BotName(ctx, botID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			slog.DebugContext(ctx, "bot lookup failed", "bot_id", botID, "err", err)
		}
		return fallbackLabel(botID)
	}
	return strings.TrimSpace(name)
}

func fallbackLabel(userID string) string {
	return "U/" + userID
}

// RenderDigest formats lines one per row as "@/{name}: {text}".
func RenderDigest(lines []domain.DigestLine) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "@/%s: %s", l.Attribution, l.Content)
	}
	return sb.String()
}
