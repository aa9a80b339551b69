package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"slack-responder/internal/domain"
)

// ---------------------------------------------------------------------------
// LLM
// ---------------------------------------------------------------------------

// scriptedLLM answers classifier calls by recognising their instructions
// and everything else with reply.
type scriptedLLM struct {
	mu           sync.Mutex
	action       string
	announcement string
	domain       string
	summarize    string
	reply        string
	replyErr     error
	classifyErr  error
	calls        [][]domain.ChatMessage
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		action:       "none",
		announcement: "no",
		domain:       "no",
		summarize:    `{"action":"none"}`,
		reply:        "generated reply",
	}
}

func classifierStepOf(msgs []domain.ChatMessage) string {
	if len(msgs) == 0 || msgs[0].Role != domain.RoleSystem {
		return ""
	}
	sys := msgs[0].Content
	switch {
	case strings.Contains(sys, "delete, send or none"):
		return "action"
	case strings.Contains(sys, "latest announcement"):
		return "announcement"
	case strings.Contains(sys, "is a question about"):
		return "domain_question"
	case strings.Contains(sys, "summary of a Slack channel"):
		return "summarize"
	}
	return ""
}

func (l *scriptedLLM) Complete(_ context.Context, msgs []domain.ChatMessage) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, msgs)
	step := classifierStepOf(msgs)
	if step != "" && l.classifyErr != nil {
		return "", l.classifyErr
	}
	switch step {
	case "action":
		return l.action, nil
	case "announcement":
		return l.announcement, nil
	case "domain_question":
		return l.domain, nil
	case "summarize":
		return l.summarize, nil
	}
	return l.reply, l.replyErr
}

func (l *scriptedLLM) steps() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, c := range l.calls {
		if s := classifierStepOf(c); s != "" {
			out = append(out, s)
		} else {
			out = append(out, "generate")
		}
	}
	return out
}

func (l *scriptedLLM) lastGeneration() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.calls) - 1; i >= 0; i-- {
		if classifierStepOf(l.calls[i]) == "" {
			return l.calls[i]
		}
	}
	return nil
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string { return "timed out" }
func (timeoutErr) Timeout() bool { return true }

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

type post struct {
	ChannelID string
	ThreadID  string
	Text      string
	ID        string
}

type reaction struct {
	Op        string
	MessageID string
	Name      string
}

type fakePlatform struct {
	mu sync.Mutex

	history     map[string][]domain.PlatformMessage
	threads     map[string][]domain.PlatformMessage
	names       map[string]string
	botNames    map[string]string
	permalinks  map[string]string
	historyErr  error
	threadErr   error
	joinErr     error
	postErr     error
	deleteErr   error
	reactionErr error
	nameErr     map[string]error

	nextID        int
	posts         []post
	deletes       []string
	reactions     []reaction
	joins         []string
	nameLookups   map[string]int
	botLookups    map[string]int
	historyLimits map[string]int
	threadLimit   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		history:       map[string][]domain.PlatformMessage{},
		threads:       map[string][]domain.PlatformMessage{},
		names:         map[string]string{},
		botNames:      map[string]string{},
		permalinks:    map[string]string{},
		nameErr:       map[string]error{},
		nameLookups:   map[string]int{},
		botLookups:    map[string]int{},
		historyLimits: map[string]int{},
		nextID:        9000,
	}
}

func (p *fakePlatform) ThreadReplies(_ context.Context, channelID, threadID string, limit int) ([]domain.PlatformMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threadLimit = limit
	if p.threadErr != nil {
		return nil, p.threadErr
	}
	return p.threads[channelID+"/"+threadID], nil
}

func (p *fakePlatform) JoinChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joins = append(p.joins, channelID)
	return p.joinErr
}

func (p *fakePlatform) ChannelHistory(_ context.Context, channelID string, limit int) ([]domain.PlatformMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.historyLimits[channelID] = limit
	if p.historyErr != nil {
		return nil, p.historyErr
	}
	msgs := p.history[channelID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (p *fakePlatform) UserName(_ context.Context, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nameLookups[userID]++
	if err := p.nameErr[userID]; err != nil {
		return "", err
	}
	name, ok := p.names[userID]
	if !ok {
		return "", errors.New("user_not_found")
	}
	return name, nil
}

func (p *fakePlatform) BotName(_ context.Context, botID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.botLookups[botID]++
	name, ok := p.botNames[botID]
	if !ok {
		return "", errors.New("bot_not_found")
	}
	return name, nil
}

func (p *fakePlatform) PostMessage(_ context.Context, channelID, threadID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil && !strings.HasPrefix(text, "Something broke") {
		return "", p.postErr
	}
	p.nextID++
	id := fmt.Sprintf("%d.000100", p.nextID)
	p.posts = append(p.posts, post{ChannelID: channelID, ThreadID: threadID, Text: text, ID: id})
	return id, nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deletes = append(p.deletes, channelID+"/"+messageID)
	return nil
}

func (p *fakePlatform) AddReaction(_ context.Context, _, messageID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, reaction{Op: "add", MessageID: messageID, Name: name})
	return p.reactionErr
}

func (p *fakePlatform) RemoveReaction(_ context.Context, _, messageID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, reaction{Op: "remove", MessageID: messageID, Name: name})
	return p.reactionErr
}

func (p *fakePlatform) Permalink(_ context.Context, channelID, messageID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	link, ok := p.permalinks[channelID+"/"+messageID]
	if !ok {
		return "", errors.New("message_not_found")
	}
	return link, nil
}

func (p *fakePlatform) lastPost() post {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.posts) == 0 {
		return post{}
	}
	return p.posts[len(p.posts)-1]
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

type fakeLedger struct {
	mu       sync.Mutex
	records  map[string]domain.ReplyRecord
	getErr   error
	writes   int
	clears   int
	clearErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]domain.ReplyRecord{}}
}

func (l *fakeLedger) Record(_ context.Context, rec domain.ReplyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	l.records[rec.ChannelID] = rec
	return nil
}

func (l *fakeLedger) Get(_ context.Context, channelID string) (domain.ReplyRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return domain.ReplyRecord{}, false, l.getErr
	}
	rec, ok := l.records[channelID]
	return rec, ok, nil
}

func (l *fakeLedger) ClearIf(_ context.Context, channelID, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clears++
	if l.clearErr != nil {
		return l.clearErr
	}
	if rec, ok := l.records[channelID]; ok && rec.MessageID == messageID {
		delete(l.records, channelID)
	}
	return nil
}
