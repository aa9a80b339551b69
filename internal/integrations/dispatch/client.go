// Package dispatch hands verified Slack events from the Events API ingress
// to a worker function, so the ingress can acknowledge Slack immediately.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"slack-responder/internal/domain"
)

// Envelope is the payload the worker function receives.
type Envelope struct {
	EventID string       `json:"eventId,omitempty"`
	Event   domain.Event `json:"event"`
}

// lambdaAPI is the minimal Lambda interface required by Client.
type lambdaAPI interface {
	Invoke(ctx context.Context, in *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Client queues envelopes on the worker function with asynchronous
// (Event) invocations. Lambda owns delivery from there on.
type Client struct {
	api          lambdaAPI
	functionName string
}

func New(api lambdaAPI, functionName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("dispatch: api must not be nil")
	}
	functionName = strings.TrimSpace(functionName)
	if functionName == "" {
		return nil, errors.New("dispatch: function name must not be empty")
	}
	return &Client{api: api, functionName: functionName}, nil
}

// Dispatch returns once Lambda has accepted the envelope, without waiting
// for the worker to run.
func (c *Client) Dispatch(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dispatch: encode envelope: %w", err)
	}
	out, err := c.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(c.functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("dispatch: invoke %s: %w", c.functionName, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("dispatch: invoke %s: %s", c.functionName, aws.ToString(out.FunctionError))
	}
	return nil
}
