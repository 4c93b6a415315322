// Package factory owns the lifecycle of every application dependency:
// configuration, logging, external clients, the auth stores, and the
// wired service and handler graph.
package factory

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pics-backend/internal/attempt"
	"pics-backend/internal/audit"
	"pics-backend/internal/challenge"
	"pics-backend/internal/client"
	"pics-backend/internal/clock"
	"pics-backend/internal/config"
	"pics-backend/internal/handler"
	"pics-backend/internal/hashing"
	"pics-backend/internal/mailer"
	"pics-backend/internal/repository"
	memoryrepo "pics-backend/internal/repository/memory"
	redisrepo "pics-backend/internal/repository/redis"
	"pics-backend/internal/repository/scylla"
	"pics-backend/internal/service"
	"pics-backend/internal/token"
	"pics-backend/internal/util"
)

// Factory builds and owns the dependency graph. Construction fails fast:
// a production instance that cannot reach its required stores does not
// come up half-wired.
type Factory struct {
	config *config.Config

	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	challenges  challenge.Store
	attempts    attempt.Tracker
	identities  repository.CredentialRepository
	hasher      *hashing.Hasher
	tokens      *token.Service
	notifier    mailer.Notifier
	auditor     audit.Publisher
	authService *service.AuthService
	authHandler *handler.AuthHandler
	counter     handler.RequestCounter

	closeOnce sync.Once
}

func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.wire(); err != nil {
		f.Close()
		return nil, err
	}

	util.Info("factory initialized",
		util.String("environment", cfg.Environment),
		util.String("challenge_backend", cfg.Auth.ChallengeBackend),
		util.String("identity_backend", cfg.Auth.IdentityBackend))

	return f, nil
}

// initializeClients brings up the external clients the selected backends
// need, in parallel. Kafka alone is optional: auditing degrades, auth
// does not.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if f.config.Auth.ChallengeBackend == config.BackendRedis {
		g.Go(func() error {
			redisClient, err := client.NewRedisClient(f.config)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			f.redisClient = redisClient
			return f.redisClient.HealthCheck(ctx)
		})
	}

	if f.config.Auth.IdentityBackend == config.BackendScylla {
		g.Go(func() error {
			scyllaClient, err := scylla.NewScyllaClient(f.config)
			if err != nil {
				return fmt.Errorf("scylla: %w", err)
			}
			f.scyllaClient = scyllaClient
			return f.scyllaClient.HealthCheck(ctx)
		})
	}

	if f.config.Kafka.Enabled {
		g.Go(func() error {
			producer, err := client.NewKafkaProducer(f.config)
			if err != nil {
				util.Warn("kafka producer initialization failed, auditing disabled",
					util.ErrorField(err))
				return nil
			}
			f.kafkaProducer = producer
			return nil
		})
	}

	return g.Wait()
}

func (f *Factory) wire() error {
	clk := clock.System()
	authCfg := f.config.Auth

	switch authCfg.ChallengeBackend {
	case config.BackendRedis:
		f.challenges = redisrepo.NewChallengeCache(f.redisClient, clk)
		f.attempts = redisrepo.NewAttemptCache(f.redisClient, authCfg.AttemptThreshold, authCfg.LockoutWindow)
	default:
		f.challenges = challenge.NewMemoryStore(clk)
		f.attempts = attempt.NewMemoryTracker(clk, authCfg.AttemptThreshold, authCfg.LockoutWindow)
	}

	switch authCfg.IdentityBackend {
	case config.BackendScylla:
		f.identities = scylla.NewCredentialRepository(f.scyllaClient)
	default:
		f.identities = memoryrepo.NewIdentityRepository()
	}

	if f.config.SMTP.Host != "" {
		f.notifier = mailer.NewSMTPNotifier(f.config.SMTP)
	} else {
		if f.config.IsProduction() {
			return fmt.Errorf("SMTP_HOST is required in production")
		}
		util.Warn("SMTP not configured, codes will be written to the log")
		f.notifier = mailer.NewLogNotifier()
	}

	if f.kafkaProducer != nil {
		f.auditor = audit.NewKafkaPublisher(f.kafkaProducer)
	} else {
		f.auditor = audit.NopPublisher{}
	}

	// The IP limiter shares Redis when the challenge backend already
	// brings it up; otherwise each instance counts on its own.
	if f.redisClient != nil {
		f.counter = handler.NewRedisCounter(f.redisClient)
	} else {
		f.counter = handler.NewMemoryCounter()
	}

	f.hasher = hashing.NewHasher(0)
	f.tokens = token.NewService(f.config.JWT, clk)

	f.authService = service.NewAuthService(
		f.challenges,
		f.attempts,
		f.identities,
		f.hasher,
		f.tokens,
		f.notifier,
		f.auditor,
		clk,
		authCfg,
	)
	f.authHandler = handler.NewAuthHandler(f.authService, f.tokens, f.config.IsProduction())
	return nil
}

func (f *Factory) Config() *config.Config                      { return f.config }
func (f *Factory) AuthService() *service.AuthService           { return f.authService }
func (f *Factory) Identities() repository.CredentialRepository { return f.identities }
func (f *Factory) Hasher() *hashing.Hasher                     { return f.hasher }

// Router builds the HTTP surface with the health probe bound to the
// live clients.
func (f *Factory) Router() http.Handler {
	return handler.NewRouter(f.authHandler, f.config, f.counter, func(r *http.Request) error {
		return f.HealthCheck(r.Context())
	})
}

// HealthCheck probes whichever external stores are in play.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			return err
		}
	}
	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		util.Info("shutting down factory")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("failed to close kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("failed to close redis client", util.ErrorField(err))
			}
		}

		util.Sync()
	})
}
