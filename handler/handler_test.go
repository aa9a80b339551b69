package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"slack-responder/internal/domain"
	"slack-responder/internal/integrations/dispatch"
	"slack-responder/internal/logging"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

type stubDispatcher struct {
	mu        sync.Mutex
	err       error
	envelopes []dispatch.Envelope
	fields    []logging.Fields
	deadlines []bool
}

func (s *stubDispatcher) Dispatch(ctx context.Context, env dispatch.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	s.deadlines = append(s.deadlines, hasDeadline)
	if s.err != nil {
		return s.err
	}
	s.envelopes = append(s.envelopes, env)
	s.fields = append(s.fields, logging.FieldsFrom(ctx))
	return nil
}

func sign(secret, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/slack/events",
		Headers: map[string]string{
			"content-type":              "application/json",
			"x-slack-request-timestamp": ts,
			"x-slack-signature":         sign(testSecret, ts, body),
		},
		Body: body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T) (*Handler, *stubDispatcher) {
	t.Helper()
	d := &stubDispatcher{}
	h, err := NewHandler(d, testSecret)
	require.NoError(t, err)
	return h, d
}

const mentionBody = `{"token":"t","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev42","event_time":1,` +
	`"event":{"type":"app_mention","user":"U1","text":"<@UBOT> hello","ts":"100.0","channel":"C1","event_ts":"100.0"}}`

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, testSecret)
	require.Error(t, err)
	_, err = NewHandler(&stubDispatcher{}, " ")
	require.Error(t, err)
}

func TestHandle_HandsOffMention(t *testing.T) {
	h, d := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(mentionBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Equal(t, []dispatch.Envelope{{
		EventID: "Ev42",
		Event: domain.Event{
			ChannelID: "C1",
			MessageID: "100.0",
			AuthorID:  "U1",
			RawText:   "<@UBOT> hello",
			Kind:      domain.EventMention,
		},
	}}, d.envelopes)
	require.Equal(t, "Ev42", d.fields[0].EventID)
	require.Equal(t, []bool{true}, d.deadlines, "hand-off is bounded by the ack deadline")
}

func TestHandle_AcksWithoutWaitingForTheReply(t *testing.T) {
	// The dispatcher only queues; nothing the responder does can run
	// inside the request.
	h, d := newTestHandler(t)

	start := time.Now()
	resp, err := h.Handle(context.Background(), makeEvent(mentionBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, d.envelopes, 1)
}

func TestHandle_DispatchFailureAsksSlackToRetry(t *testing.T) {
	h, d := newTestHandler(t)
	d.err = errors.New("TooManyRequestsException")

	resp, err := h.Handle(context.Background(), makeEvent(mentionBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "dispatch_failed", parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_Base64Body(t *testing.T) {
	h, d := newTestHandler(t)

	req := makeEvent(mentionBody)
	req.Body = base64.StdEncoding.EncodeToString([]byte(mentionBody))
	req.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.envelopes, 1)
}

func TestHandle_URLVerification(t *testing.T) {
	h, d := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`{"token":"t","challenge":"abc123","type":"url_verification"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "abc123", parseBody[challengeResponse](t, resp.Body).Challenge)
	require.Empty(t, d.envelopes)
}

func TestHandle_RejectsBadSignature(t *testing.T) {
	cases := map[string]func(r *events.APIGatewayProxyRequest){
		"wrong secret": func(r *events.APIGatewayProxyRequest) {
			r.Headers["x-slack-signature"] = sign("other-secret", r.Headers["x-slack-request-timestamp"], r.Body)
		},
		"tampered body": func(r *events.APIGatewayProxyRequest) { r.Body += " " },
		"missing signature": func(r *events.APIGatewayProxyRequest) {
			delete(r.Headers, "x-slack-signature")
		},
		"stale timestamp": func(r *events.APIGatewayProxyRequest) {
			ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
			r.Headers["x-slack-request-timestamp"] = ts
			r.Headers["x-slack-signature"] = sign(testSecret, ts, r.Body)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h, d := newTestHandler(t)
			req := makeEvent(mentionBody)
			mutate(&req)

			resp, err := h.Handle(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "invalid_signature", parseBody[errorResponse](t, resp.Body).Error)
			require.Empty(t, d.envelopes)
		})
	}
}

func TestHandle_DropsSlackRetries(t *testing.T) {
	h, d := newTestHandler(t)

	req := makeEvent(mentionBody)
	req.Headers["X-Slack-Retry-Num"] = "1"
	req.Headers["X-Slack-Retry-Reason"] = "http_timeout"

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, d.envelopes)
}

func TestHandle_RetryAfterErrorResponseIsHandedOff(t *testing.T) {
	h, d := newTestHandler(t)

	req := makeEvent(mentionBody)
	req.Headers["X-Slack-Retry-Num"] = "1"
	req.Headers["X-Slack-Retry-Reason"] = "http_error"

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.envelopes, 1)
}

func TestHandle_InvalidEvent(t *testing.T) {
	h, d := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_event", parseBody[errorResponse](t, resp.Body).Error)
	require.Empty(t, d.envelopes)
}

func TestHandle_IgnoresUnhandledCallbacks(t *testing.T) {
	h, d := newTestHandler(t)
	body := `{"type":"event_callback","team_id":"T1","api_app_id":"A1","event_id":"Ev9","event_time":1,` +
		`"event":{"type":"reaction_added","user":"U1","reaction":"tada","item":{"type":"message","channel":"C1","ts":"1.0"},"event_ts":"2.0"}}`

	resp, err := h.Handle(context.Background(), makeEvent(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, d.envelopes)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _ := newTestHandler(t)

	req := makeEvent(`{"token":"t","challenge":"c","type":"url_verification"}`)
	req.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
