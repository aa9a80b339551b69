package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"slack-responder/internal/domain"
)

var (
	channelIDPattern  = regexp.MustCompile(`^[CG][A-Z0-9]{2,}$`)
	channelRefPattern = regexp.MustCompile(`<#([CG][A-Z0-9]{2,})(\|[^>]*)?>`)
)

// classifierStep is one constrained question put to the model. match
// reports whether text has the step's intent; a parse failure is a
// non-match, a gateway failure is returned.
type classifierStep struct {
	name  string
	match func(ctx context.Context, text string) (domain.Intent, bool, error)
}

// Classifier maps free text to one Intent by asking its steps in order;
// the first step that matches wins.
type Classifier struct {
	llm   LLMClient
	steps []classifierStep
}

// ClassifierOptions turns on the steps that need a well-known channel.
type ClassifierOptions struct {
	Announcements  bool
	ReferenceTopic string
}

func NewClassifier(llm LLMClient, opts ClassifierOptions) (*Classifier, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	c := &Classifier{llm: llm}
	c.steps = append(c.steps, classifierStep{name: "action", match: c.matchAction})
	if opts.Announcements {
		c.steps = append(c.steps, classifierStep{name: "announcement", match: c.matchAnnouncement})
	}
	if topic := strings.TrimSpace(opts.ReferenceTopic); topic != "" {
		c.steps = append(c.steps, classifierStep{
			name: "domain_question",
			match: func(ctx context.Context, text string) (domain.Intent, bool, error) {
				return c.matchDomainQuestion(ctx, text, topic)
			},
		})
	}
	c.steps = append(c.steps, classifierStep{name: "summarize", match: c.matchSummarize})
	return c, nil
}

// Classify returns the first matching intent, or IntentNone when no step
// matches. Only a gateway failure is returned as an error.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Intent, error) {
	for _, step := range c.steps {
		intent, ok, err := step.match(ctx, text)
		if err != nil {
			return domain.Intent{}, err
		}
		if ok {
			slog.DebugContext(ctx, "intent classified", "step", step.name, "intent", intent.Kind)
			return intent, nil
		}
	}
	return domain.Intent{Kind: domain.IntentNone}, nil
}

func (c *Classifier) ask(ctx context.Context, reason, instructions, text string) (string, error) {
	raw, err := c.llm.Complete(ctx, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: instructions},
		{Role: domain.RoleUser, Content: text},
	})
	if err != nil {
		return "", llmError(reason, err)
	}
	return raw, nil
}

func (c *Classifier) matchAction(ctx context.Context, text string) (domain.Intent, bool, error) {
	raw, err := c.ask(ctx, "classify_action", actionInstructions(), text)
	if err != nil {
		return domain.Intent{}, false, err
	}
	word, err := parseWord(raw, "delete", "send", "none")
	if err != nil {
		logParseMiss(ctx, "action", err)
		return domain.Intent{}, false, nil
	}
	switch word {
	case "delete":
		return domain.Intent{Kind: domain.IntentDelete}, true, nil
	case "send":
		return domain.Intent{Kind: domain.IntentSend}, true, nil
	}
	return domain.Intent{}, false, nil
}

func (c *Classifier) matchAnnouncement(ctx context.Context, text string) (domain.Intent, bool, error) {
	raw, err := c.ask(ctx, "classify_announcement", announcementInstructions(), text)
	if err != nil {
		return domain.Intent{}, false, err
	}
	word, err := parseWord(raw, "yes", "no")
	if err != nil {
		logParseMiss(ctx, "announcement", err)
		return domain.Intent{}, false, nil
	}
	return domain.Intent{Kind: domain.IntentAnnouncement}, word == "yes", nil
}

func (c *Classifier) matchDomainQuestion(ctx context.Context, text, topic string) (domain.Intent, bool, error) {
	raw, err := c.ask(ctx, "classify_domain_question", domainQuestionInstructions(topic), text)
	if err != nil {
		return domain.Intent{}, false, err
	}
	word, err := parseWord(raw, "yes", "no")
	if err != nil {
		logParseMiss(ctx, "domain_question", err)
		return domain.Intent{}, false, nil
	}
	return domain.Intent{Kind: domain.IntentDomainQuestion, Topic: topic}, word == "yes", nil
}

func (c *Classifier) matchSummarize(ctx context.Context, text string) (domain.Intent, bool, error) {
	raw, err := c.ask(ctx, "classify_summarize", summarizeInstructions(), text)
	if err != nil {
		return domain.Intent{}, false, err
	}
	decision, err := parseSummarizeDecision(raw)
	if err != nil {
		logParseMiss(ctx, "summarize", err)
		return domain.Intent{}, false, nil
	}
	if decision.Action != "summarize" {
		return domain.Intent{}, false, nil
	}
	channelID := strings.TrimSpace(decision.ChannelID)
	if !channelIDPattern.MatchString(channelID) {
		channelID = firstChannelRef(text)
	}
	if channelID == "" {
		logParseMiss(ctx, "summarize", errors.New("no usable channel id"))
		return domain.Intent{}, false, nil
	}
	return domain.Intent{Kind: domain.IntentSummarizeChannel, ChannelID: channelID}, true, nil
}

func logParseMiss(ctx context.Context, step string, err error) {
	slog.DebugContext(ctx, "classifier output rejected, treating as no match",
		"step", step, "err", newError(ErrorClassificationParse, step, err))
}

// parseWord accepts output that is exactly one of allowed, ignoring case,
// surrounding whitespace, quotes and a trailing full stop.
func parseWord(raw string, allowed ...string) (string, error) {
	word := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'`."))
	for _, a := range allowed {
		if word == a {
			return word, nil
		}
	}
	return "", fmt.Errorf("unexpected classifier output %q", truncate(raw, 40))
}

type summarizeDecision struct {
	Action    string `json:"action"`
	ChannelID string `json:"channel_id,omitempty"`
}

// parseSummarizeDecision decodes exactly one JSON object with no unknown
// fields. A surrounding ```json fence is tolerated.
func parseSummarizeDecision(raw string) (summarizeDecision, error) {
	var out summarizeDecision
	dec := json.NewDecoder(bytes.NewBufferString(stripCodeFence(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return summarizeDecision{}, fmt.Errorf("usecase: decode summarize decision: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return summarizeDecision{}, errors.New("usecase: decode summarize decision: multiple JSON values")
		}
		return summarizeDecision{}, fmt.Errorf("usecase: decode summarize decision trailing data: %w", err)
	}
	out.Action = strings.ToLower(strings.TrimSpace(out.Action))
	if out.Action == "" {
		return summarizeDecision{}, errors.New("usecase: summarize decision missing action")
	}
	return out, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstChannelRef(text string) string {
	m := channelRefPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
