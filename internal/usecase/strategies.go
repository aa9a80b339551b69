package usecase

import (
	"context"
	"log/slog"
	"strings"
)

func (r *Responder) deleteLast(ctx context.Context, t turn) (reply, error) {
	ch := t.event.ChannelID
	rec, ok, err := r.ledger.Get(ctx, ch)
	if err != nil {
		return reply{}, newError(ErrorInternal, "ledger_read", err)
	}
	if !ok {
		return reply{text: NothingToDeleteText, threadID: t.event.ReplyThread()}, nil
	}
	if err := r.platform.DeleteMessage(ctx, ch, rec.MessageID); err != nil {
		return reply{}, newError(ErrorPlatformAPI, "delete_message", err)
	}
	// Another reply may have been recorded while deleting; only our record goes.
	if err := r.ledger.ClearIf(ctx, ch, rec.MessageID); err != nil {
		slog.ErrorContext(ctx, "ledger clear failed after delete", "err", err, "message_id", rec.MessageID)
	}
	slog.InfoContext(ctx, "deleted last reply", "message_id", rec.MessageID)
	return reply{}, nil
}

// sendLast re-posts the last reply at channel root. The new post becomes
// the channel's last reply.
func (r *Responder) sendLast(ctx context.Context, t turn) (reply, error) {
	rec, ok, err := r.ledger.Get(ctx, t.event.ChannelID)
	if err != nil {
		return reply{}, newError(ErrorInternal, "ledger_read", err)
	}
	if !ok {
		return reply{text: NothingToSendText, threadID: t.event.ReplyThread()}, nil
	}
	return reply{text: rec.Text, record: true}, nil
}

func (r *Responder) announce(ctx context.Context, t turn) (reply, error) {
	ch := r.cfg.AnnouncementsChannelID
	var announcement, link string
	msgs, err := r.platform.ChannelHistory(ctx, ch, 1)
	if err != nil {
		slog.WarnContext(ctx, "announcements unavailable", "err", newError(ErrorContextFetch, "announcement_history", err))
	}
	if len(msgs) > 0 {
		latest := msgs[len(msgs)-1]
		announcement = strings.TrimSpace(latest.Text)
		link, err = r.platform.Permalink(ctx, ch, latest.ID)
		if err != nil {
			slog.WarnContext(ctx, "permalink unavailable", "err", newError(ErrorPlatformAPI, "permalink", err))
			link = ""
		}
	}
	return r.generate(ctx, t, announcementGrounding(announcement, link))
}

func (r *Responder) answerDomainQuestion(ctx context.Context, t turn) (reply, error) {
	msgs, err := r.platform.ChannelHistory(ctx, r.cfg.ReferenceChannelID, r.cfg.ReferenceLimit)
	if err != nil {
		slog.WarnContext(ctx, "reference channel unavailable", "err", newError(ErrorContextFetch, "reference_history", err))
	}
	reference := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if text := strings.TrimSpace(m.Text); text != "" && !isComment(text, r.cfg.CommentMarker) {
			reference = append(reference, "- "+text)
		}
	}
	topic := t.intent.Topic
	if topic == "" {
		topic = r.cfg.ReferenceTopic
	}
	return r.generate(ctx, t, referenceGrounding(topic, reference))
}

func (r *Responder) summarize(ctx context.Context, t turn) (reply, error) {
	ch := t.intent.ChannelID
	lines := r.digests.Build(ctx, ch)
	rep, err := r.generate(ctx, t, summaryGrounding(ch, RenderDigest(lines)))
	if err != nil {
		return reply{}, err
	}
	rep.text = summaryPrefix(ch) + "\n" + rep.text
	return rep, nil
}

func (r *Responder) converse(ctx context.Context, t turn) (reply, error) {
	return r.generate(ctx, t)
}

// generate asks the model for a reply in the event's thread, grounded on the
// given context blocks and the thread's prior turns.
func (r *Responder) generate(ctx context.Context, t turn, grounding ...string) (reply, error) {
	history := r.threads.Build(ctx, t.event.ChannelID, t.event.ThreadID, t.event.MessageID)
	text, err := r.llm.Complete(ctx, generationMessages(r.cfg.SystemPrompt, grounding, history, t.text))
	if err != nil {
		return reply{}, llmError("generate_reply", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return reply{}, newError(ErrorGeneration, "empty_completion", nil)
	}
	return reply{text: text, threadID: t.event.ReplyThread(), record: true}, nil
}
