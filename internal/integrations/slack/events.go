package slack

import (
	"github.com/slack-go/slack/slackevents"

	"slack-responder/internal/domain"
)

// ConvertEvent maps a callback event to a domain event. It reports false for
// event types the responder does not handle.
func ConvertEvent(ev slackevents.EventsAPIEvent) (domain.Event, bool) {
	if ev.Type != slackevents.CallbackEvent {
		return domain.Event{}, false
	}
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		return domain.Event{
			ChannelID: inner.Channel,
			ThreadID:  inner.ThreadTimeStamp,
			MessageID: inner.TimeStamp,
			AuthorID:  inner.User,
			BotID:     inner.BotID,
			RawText:   inner.Text,
			Kind:      domain.EventMention,
		}, true
	case *slackevents.MessageEvent:
		return domain.Event{
			ChannelID: inner.Channel,
			ThreadID:  inner.ThreadTimeStamp,
			MessageID: inner.TimeStamp,
			AuthorID:  inner.User,
			BotID:     inner.BotID,
			SubType:   inner.SubType,
			RawText:   inner.Text,
			Kind:      domain.EventPlainMessage,
		}, true
	}
	return domain.Event{}, false
}

// EventID returns the delivery id of a callback event, or "" when absent.
func EventID(ev slackevents.EventsAPIEvent) string {
	if cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent); ok {
		return cb.EventID
	}
	return ""
}
