package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// tokenPayload is the JSON shape stored in SSM for API tokens and secrets.
type tokenPayload struct {
	Token string `json:"token"`
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// GetToken reads a SecureString parameter holding {"token":"..."} and
// returns the token.
func (c *Client) GetToken(ctx context.Context, name string) (string, error) {
	raw, err := c.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal token %q as JSON: %w", name, err)
	}
	token := strings.TrimSpace(tp.Token)
	if token == "" {
		return "", fmt.Errorf("paramstore: token %q is empty", name)
	}
	return token, nil
}

// Secrets are the values the responder loads once at startup.
type Secrets struct {
	SlackBotToken      string
	SlackAppToken string
	SystemPrompt  string
}

func cleanPrefix(prefix string) (string, error) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "", errors.New("paramstore: prefix must not be empty")
	}
	return prefix, nil
}

// SigningSecret reads the Slack signing secret, the only secret the Events
// API ingress needs.
func (c *Client) SigningSecret(ctx context.Context, prefix string) (string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return "", err
	}
	return c.GetToken(ctx, prefix+"/slack-signing-secret")
}

// LoadSecrets reads the Slack credentials and the persona prompt under
// prefix. The app token is only needed in socket mode; the bot token and
// system prompt are always required.
func (c *Client) LoadSecrets(ctx context.Context, prefix string, needAppToken bool) (Secrets, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return Secrets{}, err
	}

	var s Secrets
	if s.SlackBotToken, err = c.GetToken(ctx, prefix+"/slack-bot-token"); err != nil {
		return Secrets{}, err
	}
	if needAppToken {
		if s.SlackAppToken, err = c.GetToken(ctx, prefix+"/slack-app-token"); err != nil {
			return Secrets{}, err
		}
	}
	prompt, err := c.GetParameter(ctx, prefix+"/system-prompt")
	if err != nil {
		return Secrets{}, err
	}
	s.SystemPrompt = strings.TrimSpace(prompt)
	if s.SystemPrompt == "" {
		return Secrets{}, errors.New("paramstore: system prompt is empty")
	}
	return s, nil
}
