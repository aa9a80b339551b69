package handler

import (
	"context"
	"errors"
	"log/slog"

	"slack-responder/internal/domain"
	"slack-responder/internal/integrations/dispatch"
	"slack-responder/internal/logging"
)

type EventSink interface {
	Handle(ctx context.Context, ev domain.Event)
}

// Worker runs the events the ingress handed off. It is the entry point of
// the asynchronously invoked function.
type Worker struct {
	sink EventSink
}

func NewWorker(sink EventSink) (*Worker, error) {
	if sink == nil {
		return nil, errors.New("handler: event sink must not be nil")
	}
	return &Worker{sink: sink}, nil
}

// Handle never returns an error. The sink reports its own failures in
// Slack, and a Lambda retry would post a second reply.
func (w *Worker) Handle(ctx context.Context, env dispatch.Envelope) error {
	if env.EventID != "" {
		ctx = logging.WithFields(ctx, logging.Fields{EventID: env.EventID})
	}
	if env.Event.ChannelID == "" || env.Event.MessageID == "" {
		slog.WarnContext(ctx, "discarding incomplete envelope")
		return nil
	}
	w.sink.Handle(ctx, env.Event)
	return nil
}
