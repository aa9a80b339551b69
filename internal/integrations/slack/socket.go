package slack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"slack-responder/internal/domain"
	"slack-responder/internal/logging"
)

// EventSink handles one domain event to completion.
type EventSink interface {
	Handle(ctx context.Context, ev domain.Event)
}

type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// SocketRunner receives events over socket mode, acknowledges each one as
// soon as it arrives and handles it on its own goroutine.
type SocketRunner struct {
	socket       *socketmode.Client
	sink         EventSink
	eventTimeout time.Duration
	wg           sync.WaitGroup
}

func NewSocketRunner(c *Client, sink EventSink, eventTimeout time.Duration, debug bool) (*SocketRunner, error) {
	if c == nil {
		return nil, errors.New("slack: client must not be nil")
	}
	if sink == nil {
		return nil, errors.New("slack: event sink must not be nil")
	}
	return &SocketRunner{
		socket:       socketmode.New(c.api, socketmode.OptionDebug(debug)),
		sink:         sink,
		eventTimeout: eventTimeout,
	}, nil
}

// Run blocks until ctx is cancelled, then waits for in-flight events.
func (r *SocketRunner) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.serve(ctx, r.socket.Events, r.socket)
	}()

	err := r.socket.RunContext(ctx)
	<-done
	r.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serve dispatches events until ctx is done or events is closed.
func (r *SocketRunner) serve(ctx context.Context, events <-chan socketmode.Event, ack acker) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.dispatch(ctx, evt, ack)
		}
	}
}

func (r *SocketRunner) dispatch(ctx context.Context, evt socketmode.Event, ack acker) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		slog.InfoContext(ctx, "connecting to socket mode")
	case socketmode.EventTypeConnected:
		slog.InfoContext(ctx, "connected to socket mode")
	case socketmode.EventTypeConnectionError:
		slog.WarnContext(ctx, "socket mode connection error", "data", evt.Data)
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			ack.Ack(*evt.Request)
		}
		ev, ok := ConvertEvent(apiEvent)
		if !ok {
			return
		}
		eventID := EventID(apiEvent)
		if eventID == "" {
			eventID = uuid.NewString()
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(context.WithoutCancel(ctx), eventID, ev)
		}()
	}
}

func (r *SocketRunner) handle(ctx context.Context, eventID string, ev domain.Event) {
	ctx = logging.WithFields(ctx, logging.Fields{EventID: eventID})
	if r.eventTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.eventTimeout)
		defer cancel()
	}
	r.sink.Handle(ctx, ev)
}
