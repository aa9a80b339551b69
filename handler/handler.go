package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	sdk "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"slack-responder/internal/integrations/dispatch"
	slackapi "slack-responder/internal/integrations/slack"
	"slack-responder/internal/logging"
)

const (
	correlationHeader = "X-Correlation-Id"
	retryNumHeader    = "X-Slack-Retry-Num"
	retryReasonHeader = "X-Slack-Retry-Reason"

	// Slack expects an acknowledgement within three seconds.
	dispatchTimeout = 2 * time.Second
)

// Dispatcher queues an event for the worker and returns without waiting
// for it to be handled. *dispatch.Client satisfies this interface.
type Dispatcher interface {
	Dispatch(ctx context.Context, env dispatch.Envelope) error
}

type errorResponse struct {
	Error string `json:"error"`
}

type challengeResponse struct {
	Challenge string `json:"challenge"`
}

// Handler serves the Slack Events API behind API Gateway. It verifies and
// converts each event, hands it to the worker and acknowledges Slack
// without waiting for the reply to be produced.
type Handler struct {
	dispatcher    Dispatcher
	signingSecret string
}

func NewHandler(dispatcher Dispatcher, signingSecret string) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	if strings.TrimSpace(signingSecret) == "" {
		return nil, errors.New("handler: signing secret must not be empty")
	}
	return &Handler{dispatcher: dispatcher, signingSecret: signingSecret}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := toHeader(req.Headers)
	correlationID := headers.Get(correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logging.WithFields(ctx, logging.Fields{EventID: correlationID})

	body, err := requestBody(req)
	if err != nil {
		slog.WarnContext(ctx, "undecodable request body", "err", err)
		return errorJSON(http.StatusBadRequest, "invalid_body", correlationID), nil
	}

	if err := h.verify(headers, body); err != nil {
		slog.WarnContext(ctx, "rejected request signature", "err", err)
		return errorJSON(http.StatusUnauthorized, "invalid_signature", correlationID), nil
	}

	// A retry after anything but our own error response means the first
	// delivery was already handed off.
	if retry := headers.Get(retryNumHeader); retry != "" && headers.Get(retryReasonHeader) != "http_error" {
		slog.InfoContext(ctx, "dropping slack retry", "retry_num", retry, "reason", headers.Get(retryReasonHeader))
		return response(http.StatusOK, "", correlationID), nil
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.WarnContext(ctx, "unparseable event", "err", err)
		return errorJSON(http.StatusBadRequest, "invalid_event", correlationID), nil
	}

	switch apiEvent.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return errorJSON(http.StatusBadRequest, "invalid_event", correlationID), nil
		}
		return jsonResponse(http.StatusOK, challengeResponse{Challenge: challenge.Challenge}, correlationID), nil
	case slackevents.CallbackEvent:
		ev, ok := slackapi.ConvertEvent(apiEvent)
		if !ok {
			return response(http.StatusOK, "", correlationID), nil
		}
		eventID := slackapi.EventID(apiEvent)
		if eventID != "" {
			ctx = logging.WithFields(ctx, logging.Fields{EventID: eventID})
		} else {
			eventID = correlationID
		}
		dctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		if err := h.dispatcher.Dispatch(dctx, dispatch.Envelope{EventID: eventID, Event: ev}); err != nil {
			slog.ErrorContext(ctx, "event hand-off failed", "err", err)
			return errorJSON(http.StatusInternalServerError, "dispatch_failed", correlationID), nil
		}
	}
	return response(http.StatusOK, "", correlationID), nil
}

func (h *Handler) verify(headers http.Header, body []byte) error {
	sv, err := sdk.NewSecretsVerifier(headers, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

func toHeader(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		out.Set(k, v)
	}
	return out
}

func response(status int, body, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{correlationHeader: correlationID},
		Body:       body,
	}
}

func jsonResponse(status int, v any, correlationID string) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		return response(http.StatusInternalServerError, `{"error":"INTERNAL_ERROR"}`, correlationID)
	}
	resp := response(status, string(b), correlationID)
	resp.Headers["Content-Type"] = "application/json"
	return resp
}

func errorJSON(status int, code, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(status, errorResponse{Error: code}, correlationID)
}
