package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"chat-widget/internal/config"
	"chat-widget/internal/integrations/agent"
	"chat-widget/internal/integrations/paramstore"
	"chat-widget/internal/repository"
	"chat-widget/internal/usecase"
)

const (
	redisKeyPrefix    = "chat-widget"
	pendingLeaseSlack = 5 * time.Second
)

// Deps are the long-lived clients both entry points share.
type Deps struct {
	Store repository.KeyValueStore
	Agent *agent.Client

	closers []func() error
}

// Close releases connections opened by Build.
func (d *Deps) Close() {
	for _, c := range d.closers {
		_ = c()
	}
}

// SessionStore returns the persistence adapter for key.
func (d *Deps) SessionStore(cfg *config.Config, key string, log *slog.Logger) (*repository.SessionStore, error) {
	return repository.NewSessionStore(d.Store, key,
		repository.WithTTL(cfg.SessionTTL),
		repository.WithLogger(log),
	)
}

// NewConversation builds an uninitialized conversation persisted under key.
// Its in-flight marker outlives the agent timeout by pendingLeaseSlack.
func (d *Deps) NewConversation(cfg *config.Config, key string, log *slog.Logger) (*usecase.Conversation, error) {
	store, err := d.SessionStore(cfg, key, log)
	if err != nil {
		return nil, err
	}
	return usecase.NewConversation(store, d.Agent,
		usecase.WithLogger(log),
		usecase.WithPendingLease(cfg.AgentTimeout+pendingLeaseSlack),
	)
}

// Build connects the configured storage backend and agent client. AWS
// configuration is only loaded when a component needs it.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Deps, error) {
	if log == nil {
		log = slog.Default()
	}
	deps := &Deps{}

	var awsCfg aws.Config
	if cfg.UsesAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
	}

	store, err := newStore(ctx, cfg, awsCfg, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Store = store

	var params paramstore.Getter
	if cfg.AgentBaseURL == "" && cfg.ParamPrefix != "" {
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("bootstrap: create parameter store client: %w", err)
		}
	}
	endpoint, err := cfg.ResolveAgentEndpoint(ctx, params)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if !endpoint.Configured() {
		log.Warn("agent endpoint not configured, replies will be mocked")
	}
	deps.Agent = agent.NewClient(endpoint,
		agent.WithTimeout(cfg.AgentTimeout),
		agent.WithLogger(log),
	)

	log.Info("dependencies ready", "storage", cfg.StorageBackend, "agent_configured", endpoint.Configured())
	return deps, nil
}

func newStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, deps *Deps) (repository.KeyValueStore, error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		return repository.NewFileStore(cfg.StorageDir)
	case config.BackendRedis:
		client, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)
		return repository.NewRedisStore(client, redisKeyPrefix, cfg.SessionTTL)
	case config.BackendDynamoDB:
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.SessionTTL)
	case config.BackendMemory:
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", cfg.StorageBackend)
	}
}
