package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"slack-responder/internal/domain"
)

func allSteps() ClassifierOptions {
	return ClassifierOptions{Announcements: true, ReferenceTopic: "the office"}
}

func newTestClassifier(t *testing.T, llm LLMClient, opts ClassifierOptions) *Classifier {
	t.Helper()
	c, err := NewClassifier(llm, opts)
	require.NoError(t, err)
	return c
}

func TestNewClassifier_StepsFollowConfiguration(t *testing.T) {
	_, err := NewClassifier(nil, allSteps())
	require.Error(t, err)

	names := func(c *Classifier) []string {
		var out []string
		for _, s := range c.steps {
			out = append(out, s.name)
		}
		return out
	}
	require.Equal(t, []string{"action", "announcement", "domain_question", "summarize"}, names(newTestClassifier(t, newScriptedLLM(), allSteps())))
	require.Equal(t, []string{"action", "summarize"}, names(newTestClassifier(t, newScriptedLLM(), ClassifierOptions{})))
}

func TestClassify_FirstMatchWinsAndShortCircuits(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(l *scriptedLLM)
		want      domain.Intent
		wantSteps []string
	}{
		{
			name:      "delete",
			setup:     func(l *scriptedLLM) { l.action = "delete"; l.announcement = "yes" },
			want:      domain.Intent{Kind: domain.IntentDelete},
			wantSteps: []string{"action"},
		},
		{
			name:      "send",
			setup:     func(l *scriptedLLM) { l.action = " Send. " },
			want:      domain.Intent{Kind: domain.IntentSend},
			wantSteps: []string{"action"},
		},
		{
			name:      "announcement beats domain question",
			setup:     func(l *scriptedLLM) { l.announcement = "yes"; l.domain = "yes" },
			want:      domain.Intent{Kind: domain.IntentAnnouncement},
			wantSteps: []string{"action", "announcement"},
		},
		{
			name:      "domain question",
			setup:     func(l *scriptedLLM) { l.domain = "YES" },
			want:      domain.Intent{Kind: domain.IntentDomainQuestion, Topic: "the office"},
			wantSteps: []string{"action", "announcement", "domain_question"},
		},
		{
			name:      "summarize",
			setup:     func(l *scriptedLLM) { l.summarize = `{"action":"summarize","channel_id":"C123"}` },
			want:      domain.Intent{Kind: domain.IntentSummarizeChannel, ChannelID: "C123"},
			wantSteps: []string{"action", "announcement", "domain_question", "summarize"},
		},
		{
			name:      "nothing matches",
			setup:     func(l *scriptedLLM) {},
			want:      domain.Intent{Kind: domain.IntentNone},
			wantSteps: []string{"action", "announcement", "domain_question", "summarize"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := newScriptedLLM()
			tc.setup(llm)
			c := newTestClassifier(t, llm, allSteps())

			got, err := c.Classify(context.Background(), "some text")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantSteps, llm.steps())
		})
	}
}

func TestClassify_MalformedOutputFallsThrough(t *testing.T) {
	llm := newScriptedLLM()
	llm.action = "I think you want to delete it"
	llm.announcement = "maybe"
	llm.domain = "{}"
	llm.summarize = `summarize C123 please`
	c := newTestClassifier(t, llm, allSteps())

	got, err := c.Classify(context.Background(), "delete that?")
	require.NoError(t, err)
	require.Equal(t, domain.IntentNone, got.Kind)
	require.Len(t, llm.steps(), 4)
}

func TestClassify_SummarizeChannelFallbackFromText(t *testing.T) {
	llm := newScriptedLLM()
	llm.summarize = `{"action":"summarize"}`
	c := newTestClassifier(t, llm, ClassifierOptions{})

	got, err := c.Classify(context.Background(), "can you summarize <#C0ENG42|eng>")
	require.NoError(t, err)
	require.Equal(t, domain.Intent{Kind: domain.IntentSummarizeChannel, ChannelID: "C0ENG42"}, got)

	got, err = c.Classify(context.Background(), "summarize the channel")
	require.NoError(t, err)
	require.Equal(t, domain.IntentNone, got.Kind)
}

func TestClassify_SummarizeRejectsInvalidChannelID(t *testing.T) {
	llm := newScriptedLLM()
	llm.summarize = `{"action":"summarize","channel_id":"#general"}`
	c := newTestClassifier(t, llm, ClassifierOptions{})

	got, err := c.Classify(context.Background(), "summarize general")
	require.NoError(t, err)
	require.Equal(t, domain.IntentNone, got.Kind)
}

func TestClassify_GatewayFailureIsReturned(t *testing.T) {
	llm := newScriptedLLM()
	llm.classifyErr = timeoutErr{}
	c := newTestClassifier(t, llm, allSteps())

	_, err := c.Classify(context.Background(), "hello")
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorTimeout, ucErr.Code)
	require.Equal(t, "classify_action_timeout", ucErr.Reason)
	require.Len(t, llm.steps(), 1)

	llm.classifyErr = &statusErr{code: http.StatusTooManyRequests}
	_, err = c.Classify(context.Background(), "hello")
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorGeneration, ucErr.Code)
	require.Equal(t, "classify_action_rate_limited", ucErr.Reason)

	llm.classifyErr = errors.New("connection reset")
	_, err = c.Classify(context.Background(), "hello")
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, "classify_action", ucErr.Reason)
}

func TestClassify_ClassificationCallsAreIsolated(t *testing.T) {
	llm := newScriptedLLM()
	c := newTestClassifier(t, llm, ClassifierOptions{})
	_, err := c.Classify(context.Background(), "what's up")
	require.NoError(t, err)

	for _, call := range llm.calls {
		require.Len(t, call, 2)
		require.Equal(t, domain.RoleSystem, call[0].Role)
		require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "what's up"}, call[1])
	}
}

func TestParseWord(t *testing.T) {
	w, err := parseWord(" \"DELETE\". ", "delete", "none")
	require.NoError(t, err)
	require.Equal(t, "delete", w)

	_, err = parseWord("delete it", "delete", "none")
	require.Error(t, err)
	_, err = parseWord("", "yes", "no")
	require.Error(t, err)
}

func TestParseSummarizeDecision(t *testing.T) {
	out, err := parseSummarizeDecision(`{"action":"summarize","channel_id":"C1"}`)
	require.NoError(t, err)
	require.Equal(t, summarizeDecision{Action: "summarize", ChannelID: "C1"}, out)

	out, err = parseSummarizeDecision("```json\n{\"action\":\"None\"}\n```")
	require.NoError(t, err)
	require.Equal(t, "none", out.Action)

	for _, raw := range []string{
		`not-json`,
		`{"action":"summarize","channel_id":"C1","extra":true}`,
		`{"action":"summarize"}{"action":"none"}`,
		`{"channel_id":"C1"}`,
		`["summarize"]`,
		`{'action': 'summarize'}`,
	} {
		_, err := parseSummarizeDecision(raw)
		require.Error(t, err, "raw=%s", raw)
	}
}
