package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"slack-responder/handler"
	"slack-responder/internal/config"
	"slack-responder/internal/integrations/dispatch"
	"slack-responder/internal/integrations/openai"
	"slack-responder/internal/integrations/paramstore"
	"slack-responder/internal/integrations/slack"
	"slack-responder/internal/logging"
	"slack-responder/internal/repository"
	"slack-responder/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}

	switch cfg.RunMode {
	case config.RunModeLambda:
		runIngress(ctx, cfg, awsCfg, ssmClient)
	case config.RunModeWorker:
		_, responder := newResponder(ctx, cfg, awsCfg, ssmClient)
		worker, err := handler.NewWorker(responder)
		if err != nil {
			fatal("failed to create worker", err)
		}
		lambda.Start(worker.Handle)
	default:
		runSocket(ctx, cfg, awsCfg, ssmClient)
	}
}

// runIngress serves the Events API. It only verifies, hands off and acks,
// so it needs neither the Slack client nor the LLM.
func runIngress(ctx context.Context, cfg config.Config, awsCfg aws.Config, ssmClient *paramstore.Client) {
	signingSecret, err := ssmClient.SigningSecret(ctx, cfg.ParamPrefix)
	if err != nil {
		fatal("failed to load signing secret", err)
	}
	dispatcher, err := dispatch.New(awslambda.NewFromConfig(awsCfg), cfg.DispatchFunction)
	if err != nil {
		fatal("failed to create dispatcher", err)
	}
	h, err := handler.NewHandler(dispatcher, signingSecret)
	if err != nil {
		fatal("failed to create handler", err)
	}
	lambda.Start(h.Handle)
}

func runSocket(ctx context.Context, cfg config.Config, awsCfg aws.Config, ssmClient *paramstore.Client) {
	slackClient, responder := newResponder(ctx, cfg, awsCfg, ssmClient)
	runner, err := slack.NewSocketRunner(slackClient, responder, cfg.Responder.EventTimeout, cfg.Debug)
	if err != nil {
		fatal("failed to create socket runner", err)
	}
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting socket mode")
	if err := runner.Run(runCtx); err != nil {
		stop()
		fatal("socket mode stopped", err)
	}
	slog.Info("shut down cleanly")
}

func newResponder(ctx context.Context, cfg config.Config, awsCfg aws.Config, ssmClient *paramstore.Client) (*slack.Client, *usecase.Responder) {
	socketMode := cfg.RunMode == config.RunModeSocket

	// ---- Secrets ----
	secrets, err := ssmClient.LoadSecrets(ctx, cfg.ParamPrefix, socketMode)
	if err != nil {
		fatal("failed to load secrets", err)
	}

	// ---- Clients ----
	slackOpts := []slack.Option{slack.WithDebug(cfg.Debug)}
	if socketMode {
		slackOpts = append(slackOpts, slack.WithAppToken(secrets.SlackAppToken))
	}
	slackClient, err := slack.New(secrets.SlackBotToken, slackOpts...)
	if err != nil {
		fatal("failed to create Slack client", err)
	}
	userID, botID, err := slackClient.Identity(ctx)
	if err != nil {
		fatal("failed to resolve bot identity", err)
	}
	slog.Info("bot identity resolved", "user_id", userID, "bot_id", botID)

	openaiClient, err := openai.NewClient(ssmClient, cfg.ParamPrefix,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithModel(cfg.OpenAI.Model),
		openai.WithTimeout(cfg.OpenAI.Timeout),
	)
	if err != nil {
		fatal("failed to create OpenAI client", err)
	}

	var ledger usecase.Ledger = repository.NewMemoryLedger()
	if cfg.LedgerTable != "" {
		ledger, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.LedgerTable)
		if err != nil {
			fatal("failed to create ledger client", err)
		}
	}

	// ---- Responder ----
	rc := cfg.Responder
	responder, err := usecase.NewResponder(usecase.Config{
		Identity:               usecase.Identity{UserID: userID, BotID: botID},
		SystemPrompt:           secrets.SystemPrompt,
		AnnouncementsChannelID: rc.AnnouncementsChannelID,
		ReferenceChannelID:     rc.ReferenceChannelID,
		ReferenceTopic:         rc.ReferenceTopic,
		EscalationUserID:       rc.EscalationUserID,
		CommentMarker:          rc.CommentMarker,
		ReactionProcessing:     rc.ReactionProcessing,
		ReactionDone:           rc.ReactionDone,
		ThreadContextLimit:     rc.ThreadContextLimit,
		DigestLimit:            rc.DigestLimit,
		ReferenceLimit:         rc.ReferenceLimit,
	}, openaiClient, slackClient, ledger)
	if err != nil {
		fatal("failed to create responder", err)
	}
	return slackClient, responder
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
