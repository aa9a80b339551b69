package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type RunMode string

// RunModeLambda is the Events API ingress; it hands events to the
// RunModeWorker function named by DISPATCH_FUNCTION.
const (
	RunModeSocket RunMode = "socket"
	RunModeLambda RunMode = "lambda"
	RunModeWorker RunMode = "worker"
)

type Config struct {
	ParamPrefix string
	RunMode     RunMode
	LogLevel    string
	LogFormat   string
	Debug       bool
	LedgerTable string

	DispatchFunction string

	OpenAI    OpenAIConfig
	Responder ResponderConfig
}

type OpenAIConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type ResponderConfig struct {
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
	EventTimeout           time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ParamPrefix: strings.TrimRight(getEnv("PARAM_PREFIX", ""), "/"),
		RunMode:     RunMode(strings.ToLower(getEnv("RUN_MODE", string(RunModeSocket)))),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Debug:       getEnvBool("SLACK_DEBUG", false),
		LedgerTable: getEnv("LEDGER_TABLE", ""),

		DispatchFunction: getEnv("DISPATCH_FUNCTION", ""),

		OpenAI: OpenAIConfig{
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4.1"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Responder: ResponderConfig{
			AnnouncementsChannelID: getEnv("ANNOUNCEMENTS_CHANNEL_ID", ""),
			ReferenceChannelID:     getEnv("REFERENCE_CHANNEL_ID", ""),
			ReferenceTopic:         getEnv("REFERENCE_TOPIC", ""),
			EscalationUserID:       getEnv("ESCALATION_USER_ID", ""),
			CommentMarker:          getEnv("COMMENT_MARKER", "//"),
			ReactionProcessing:     getEnv("REACTION_PROCESSING", "think"),
			ReactionDone:           getEnv("REACTION_DONE", "no_problem"),
			ThreadContextLimit:     getEnvInt("THREAD_CONTEXT_LIMIT", 20),
			DigestLimit:            getEnvInt("DIGEST_LIMIT", 100),
			ReferenceLimit:         getEnvInt("REFERENCE_LIMIT", 50),
			EventTimeout:           getEnvDuration("EVENT_TIMEOUT", 2*time.Minute),
		},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ParamPrefix == "" {
		return errors.New("config: PARAM_PREFIX is required")
	}
	switch c.RunMode {
	case RunModeSocket, RunModeWorker:
	case RunModeLambda:
		if c.DispatchFunction == "" {
			return errors.New("config: DISPATCH_FUNCTION is required in lambda mode")
		}
	default:
		return fmt.Errorf("config: RUN_MODE must be %q, %q or %q, got %q", RunModeSocket, RunModeLambda, RunModeWorker, c.RunMode)
	}
	if (c.Responder.ReferenceTopic == "") != (c.Responder.ReferenceChannelID == "") {
		return errors.New("config: REFERENCE_TOPIC and REFERENCE_CHANNEL_ID must be set together")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
