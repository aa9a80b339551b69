package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/slack-go/slack"

	"slack-responder/internal/domain"
)

const maxReplyPages = 10

type Client struct {
	api *sdk.Client
}

type options struct {
	apiURL   string
	appToken string
	debug    bool
}

type Option func(*options)

// WithAPIURL points the client at a different Web API root. The URL must
// end with a slash.
func WithAPIURL(url string) Option {
	return func(o *options) { o.apiURL = url }
}

// WithAppToken sets the app-level token socket mode connects with.
func WithAppToken(token string) Option {
	return func(o *options) { o.appToken = token }
}

func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

func New(botToken string, opts ...Option) (*Client, error) {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" {
		return nil, errors.New("slack: bot token must not be empty")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	sdkOpts := []sdk.Option{sdk.OptionDebug(o.debug)}
	if o.appToken != "" {
		if !strings.HasPrefix(o.appToken, "xapp-") {
			return nil, errors.New("slack: app token must start with xapp-")
		}
		sdkOpts = append(sdkOpts, sdk.OptionAppLevelToken(o.appToken))
	}
	if o.apiURL != "" {
		sdkOpts = append(sdkOpts, sdk.OptionAPIURL(o.apiURL))
	}
	return &Client{api: sdk.New(botToken, sdkOpts...)}, nil
}

// API exposes the underlying client for socket mode.
func (c *Client) API() *sdk.Client {
	return c.api
}

// Identity resolves the bot's own user and bot ids.
func (c *Client) Identity(ctx context.Context) (userID, botID string, err error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", "", fmt.Errorf("slack: auth test: %w", err)
	}
	if resp.UserID == "" {
		return "", "", errors.New("slack: auth test returned no user id")
	}
	return resp.UserID, resp.BotID, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID, threadID, text string) (string, error) {
	opts := []sdk.MsgOption{sdk.MsgOptionText(text, false)}
	if threadID != "" {
		opts = append(opts, sdk.MsgOptionTS(threadID))
	}
	_, ts, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if _, _, err := c.api.DeleteMessageContext(ctx, channelID, messageID); err != nil {
		return fmt.Errorf("slack: delete message: %w", err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, name string) error {
	if err := c.api.AddReactionContext(ctx, name, sdk.NewRefToMessage(channelID, messageID)); err != nil {
		return fmt.Errorf("slack: add reaction %s: %w", name, err)
	}
	return nil
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID, name string) error {
	if err := c.api.RemoveReactionContext(ctx, name, sdk.NewRefToMessage(channelID, messageID)); err != nil {
		return fmt.Errorf("slack: remove reaction %s: %w", name, err)
	}
	return nil
}

func (c *Client) Permalink(ctx context.Context, channelID, messageID string) (string, error) {
	link, err := c.api.GetPermalinkContext(ctx, &sdk.PermalinkParameters{Channel: channelID, Ts: messageID})
	if err != nil {
		return "", fmt.Errorf("slack: permalink: %w", err)
	}
	return link, nil
}

func (c *Client) JoinChannel(ctx context.Context, channelID string) error {
	if _, _, _, err := c.api.JoinConversationContext(ctx, channelID); err != nil {
		return fmt.Errorf("slack: join channel: %w", err)
	}
	return nil
}

// ChannelHistory returns the channel's most recent messages, oldest first.
func (c *Client) ChannelHistory(ctx context.Context, channelID string, limit int) ([]domain.PlatformMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &sdk.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("slack: channel history: %w", err)
	}
	// Slack returns history newest first.
	out := make([]domain.PlatformMessage, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		out = append(out, toPlatformMessage(resp.Messages[i]))
	}
	return out, nil
}

// ThreadReplies returns the last limit messages of a thread, oldest first.
// The thread's root message is included when it falls within the window.
func (c *Client) ThreadReplies(ctx context.Context, channelID, threadID string, limit int) ([]domain.PlatformMessage, error) {
	params := &sdk.GetConversationRepliesParameters{ChannelID: channelID, Timestamp: threadID, Limit: limit}
	var out []domain.PlatformMessage
	for page := 0; page < maxReplyPages; page++ {
		msgs, hasMore, cursor, err := c.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("slack: thread replies: %w", err)
		}
		for _, m := range msgs {
			out = append(out, toPlatformMessage(m))
		}
		if !hasMore || cursor == "" {
			break
		}
		params.Cursor = cursor
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// UserName prefers the display name, then the real name, then the handle.
func (c *Client) UserName(ctx context.Context, userID string) (string, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("slack: user info: %w", err)
	}
	for _, name := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
	}
	return "", nil
}

func (c *Client) BotName(ctx context.Context, botID string) (string, error) {
	bot, err := c.api.GetBotInfoContext(ctx, sdk.GetBotInfoParameters{Bot: botID})
	if err != nil {
		return "", fmt.Errorf("slack: bot info: %w", err)
	}
	return strings.TrimSpace(bot.Name), nil
}

func toPlatformMessage(m sdk.Message) domain.PlatformMessage {
	return domain.PlatformMessage{
		ID:       m.Timestamp,
		ThreadID: m.ThreadTimestamp,
		AuthorID: m.User,
		BotID:    m.BotID,
		Text:     m.Text,
	}
}
