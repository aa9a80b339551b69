package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"slack-responder/internal/domain"
	"slack-responder/internal/logging"
)

const (
	defaultReferenceLimit     = 50
	defaultCommentMarker      = "//"
	defaultReactionProcessing = "think"
	defaultReactionDone       = "no_problem"

	NothingToDeleteText = "There's no last message to delete."
	NothingToSendText   = "There's no last message to send."
)

// State names the step an event is in while it is being handled.
type State string

const (
	StateClassifying             State = "classifying"
	StateDeleting                State = "deleting"
	StateSending                 State = "sending"
	StateAnnouncing              State = "announcing"
	StateAnsweringDomainQuestion State = "answering_domain_question"
	StateSummarizing             State = "summarizing"
	StateConversing              State = "conversing"
	StateReplying                State = "replying"
	StateDone                    State = "done"
	StateErrorFallback           State = "error_fallback"
)

type Config struct {
	Identity               Identity
	SystemPrompt           string
	AnnouncementsChannelID string
	ReferenceChannelID     string
	ReferenceTopic         string
	EscalationUserID       string
	CommentMarker          string
	ReactionProcessing     string
	ReactionDone           string
	ThreadContextLimit     int
	DigestLimit            int
	ReferenceLimit         int
}

// turn is the per-event working set handed to a strategy.
type turn struct {
	event  domain.Event
	text   string
	intent domain.Intent
}

// reply is a strategy's result. An empty text posts nothing.
type reply struct {
	text     string
	threadID string
	record   bool
}

type strategy struct {
	state State
	run   func(ctx context.Context, t turn) (reply, error)
}

// Responder handles inbound events: it classifies mentions, runs exactly
// one strategy per event and posts its reply.
type Responder struct {
	cfg        Config
	llm        LLMClient
	platform   Platform
	ledger     Ledger
	classifier *Classifier
	threads    *ThreadContextBuilder
	digests    *DigestBuilder
	strategies map[domain.IntentKind]strategy
}

func NewResponder(cfg Config, llm LLMClient, platform Platform, ledger Ledger) (*Responder, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if platform == nil {
		return nil, errors.New("usecase: platform must not be nil")
	}
	if ledger == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if strings.TrimSpace(cfg.Identity.UserID) == "" {
		return nil, errors.New("usecase: bot user id must not be empty")
	}
	cfg.SystemPrompt = strings.TrimSpace(cfg.SystemPrompt)
	if cfg.SystemPrompt == "" {
		return nil, errors.New("usecase: system prompt must not be empty")
	}
	cfg.ReferenceTopic = strings.TrimSpace(cfg.ReferenceTopic)
	if (cfg.ReferenceTopic == "") != (cfg.ReferenceChannelID == "") {
		return nil, errors.New("usecase: reference topic and reference channel must be set together")
	}
	if cfg.CommentMarker == "" {
		cfg.CommentMarker = defaultCommentMarker
	}
	if cfg.ReactionProcessing == "" {
		cfg.ReactionProcessing = defaultReactionProcessing
	}
	if cfg.ReactionDone == "" {
		cfg.ReactionDone = defaultReactionDone
	}
	if cfg.ReferenceLimit <= 0 {
		cfg.ReferenceLimit = defaultReferenceLimit
	}

	classifier, err := NewClassifier(llm, ClassifierOptions{
		Announcements:  cfg.AnnouncementsChannelID != "",
		ReferenceTopic: cfg.ReferenceTopic,
	})
	if err != nil {
		return nil, err
	}
	threads, err := NewThreadContextBuilder(platform, cfg.Identity, cfg.CommentMarker, cfg.ThreadContextLimit)
	if err != nil {
		return nil, err
	}
	digests, err := NewDigestBuilder(platform, cfg.DigestLimit)
	if err != nil {
		return nil, err
	}

	r := &Responder{
		cfg:        cfg,
		llm:        llm,
		platform:   platform,
		ledger:     ledger,
		classifier: classifier,
		threads:    threads,
		digests:    digests,
	}
	r.strategies = map[domain.IntentKind]strategy{
		domain.IntentDelete:           {StateDeleting, r.deleteLast},
		domain.IntentSend:             {StateSending, r.sendLast},
		domain.IntentAnnouncement:     {StateAnnouncing, r.announce},
		domain.IntentDomainQuestion:   {StateAnsweringDomainQuestion, r.answerDomainQuestion},
		domain.IntentSummarizeChannel: {StateSummarizing, r.summarize},
		domain.IntentNone:             {StateConversing, r.converse},
	}
	return r, nil
}

// Handle processes one event to completion. Failures are reported in the
// channel and logged; nothing is returned to the transport.
func (r *Responder) Handle(ctx context.Context, ev domain.Event) {
	ctx = logging.WithFields(ctx, logging.Fields{ChannelID: ev.ChannelID, EventKind: string(ev.Kind)})
	defer func() {
		if p := recover(); p != nil {
			r.fail(ctx, ev, newError(ErrorInternal, "panic", fmt.Errorf("%v", p)))
		}
	}()

	switch ev.Kind {
	case domain.EventMention:
		r.handleMention(ctx, ev)
	case domain.EventPlainMessage:
		if r.ShouldListen(ctx, ev) {
			r.process(ctx, turn{event: ev, text: NormalizeText(ev.RawText, r.cfg.Identity.UserID)}, r.strategies[domain.IntentNone])
		}
	default:
		slog.DebugContext(ctx, "ignoring event", "kind", ev.Kind)
	}
}

func (r *Responder) handleMention(ctx context.Context, ev domain.Event) {
	if r.cfg.Identity.authored(domain.PlatformMessage{AuthorID: ev.AuthorID, BotID: ev.BotID}) {
		return
	}
	t := turn{event: ev, text: NormalizeText(ev.RawText, r.cfg.Identity.UserID)}

	r.addReaction(ctx, ev, r.cfg.ReactionProcessing)
	intent := domain.Intent{Kind: domain.IntentNone}
	if t.text != "" {
		slog.DebugContext(ctx, "state", "state", StateClassifying)
		var err error
		intent, err = r.classifier.Classify(ctx, t.text)
		if err != nil {
			r.fail(ctx, ev, err)
			return
		}
	}
	t.intent = intent

	s, ok := r.strategies[intent.Kind]
	if !ok {
		s = r.strategies[domain.IntentNone]
	}
	r.execute(ctx, t, s)
}

// process runs s for an event that skipped classification.
func (r *Responder) process(ctx context.Context, t turn, s strategy) {
	r.addReaction(ctx, t.event, r.cfg.ReactionProcessing)
	r.execute(ctx, t, s)
}

func (r *Responder) execute(ctx context.Context, t turn, s strategy) {
	ctx = logging.WithFields(ctx, logging.Fields{Strategy: string(s.state)})
	slog.DebugContext(ctx, "state", "state", s.state)

	rep, err := s.run(ctx, t)
	if err == nil {
		slog.DebugContext(ctx, "state", "state", StateReplying)
		err = r.reply(ctx, t.event, rep)
	}
	if err != nil {
		r.fail(ctx, t.event, err)
		return
	}

	r.removeReaction(ctx, t.event, r.cfg.ReactionProcessing)
	r.addReaction(ctx, t.event, r.cfg.ReactionDone)
	slog.InfoContext(ctx, "event handled", "state", StateDone)
}

func (r *Responder) reply(ctx context.Context, ev domain.Event, rep reply) error {
	if rep.text == "" {
		return nil
	}
	id, err := r.platform.PostMessage(ctx, ev.ChannelID, rep.threadID, rep.text)
	if err != nil {
		return newError(ErrorPlatformAPI, "post_reply", err)
	}
	if !rep.record {
		return nil
	}
	threadID := rep.threadID
	if threadID == "" {
		threadID = id
	}
	rec := domain.ReplyRecord{ChannelID: ev.ChannelID, MessageID: id, ThreadID: threadID, Text: rep.text}
	if err := r.ledger.Record(ctx, rec); err != nil {
		// The reply is already visible; only follow-up commands lose track of it.
		slog.ErrorContext(ctx, "ledger record failed", "err", err, "message_id", id)
	}
	return nil
}

func (r *Responder) fail(ctx context.Context, ev domain.Event, err error) {
	slog.ErrorContext(ctx, "event handling failed", "state", StateErrorFallback, "err", err)
	r.removeReaction(ctx, ev, r.cfg.ReactionProcessing)
	r.fallback(ctx, ev)
}

func (r *Responder) fallback(ctx context.Context, ev domain.Event) {
	if _, err := r.platform.PostMessage(ctx, ev.ChannelID, ev.ReplyThread(), r.FailureNotice()); err != nil {
		slog.ErrorContext(ctx, "failure notice not delivered", "err", err)
	}
}

// FailureNotice is posted when handling an event fails.
func (r *Responder) FailureNotice() string {
	if r.cfg.EscalationUserID == "" {
		return "Something broke on my end. Someone on the team might want to check this out."
	}
	return fmt.Sprintf("Something broke on my end. %s might want to check this out.", MentionToken(r.cfg.EscalationUserID))
}

func (r *Responder) addReaction(ctx context.Context, ev domain.Event, name string) {
	if err := r.platform.AddReaction(ctx, ev.ChannelID, ev.MessageID, name); err != nil {
		slog.WarnContext(ctx, "add reaction failed", "reaction", name, "err", newError(ErrorPlatformAPI, "add_reaction", err))
	}
}

func (r *Responder) removeReaction(ctx context.Context, ev domain.Event, name string) {
	if err := r.platform.RemoveReaction(ctx, ev.ChannelID, ev.MessageID, name); err != nil {
		slog.WarnContext(ctx, "remove reaction failed", "reaction", name, "err", newError(ErrorPlatformAPI, "remove_reaction", err))
	}
}

// ShouldListen reports whether a plain message is a follow-up in the thread
// the bot most recently replied in for that channel.
func (r *Responder) ShouldListen(ctx context.Context, ev domain.Event) bool {
	if ev.Kind != domain.EventPlainMessage || ev.SubType != "" || ev.ThreadID == "" {
		return false
	}
	if ev.BotID != "" || r.cfg.Identity.authored(domain.PlatformMessage{AuthorID: ev.AuthorID, BotID: ev.BotID}) {
		return false
	}
	if strings.TrimSpace(ev.RawText) == "" || isComment(ev.RawText, r.cfg.CommentMarker) {
		return false
	}
	// Mentions arrive separately as mention events.
	if mentions(ev.RawText, r.cfg.Identity.UserID) {
		return false
	}
	rec, ok, err := r.ledger.Get(ctx, ev.ChannelID)
	if err != nil {
		slog.WarnContext(ctx, "ledger read failed, not listening", "err", err)
		return false
	}
	return ok && rec.ThreadID == ev.ThreadID
}
