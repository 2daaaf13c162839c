package bootstrap

import (
	"net/http"

	"github.com/zllovesuki/billing-orchestrator/broker"
	"github.com/zllovesuki/billing-orchestrator/config"
	"github.com/zllovesuki/billing-orchestrator/db"
	"github.com/zllovesuki/billing-orchestrator/enrichment"
	"github.com/zllovesuki/billing-orchestrator/erp"
	"github.com/zllovesuki/billing-orchestrator/external"
	"github.com/zllovesuki/billing-orchestrator/gateway"
	"github.com/zllovesuki/billing-orchestrator/lead"
	"github.com/zllovesuki/billing-orchestrator/lock"
	"github.com/zllovesuki/billing-orchestrator/metrics"
	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	"github.com/zllovesuki/billing-orchestrator/proposal"
	"github.com/zllovesuki/billing-orchestrator/saga"
	"github.com/zllovesuki/billing-orchestrator/subscription"
	"github.com/zllovesuki/billing-orchestrator/workflow"

	"github.com/go-redis/redis/v7"
	extErrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stack holds every backend connection and saga component of a binary
type Stack struct {
	DB           *gorm.DB
	Metrics      *metrics.Saga
	Orchestrator *orchestrator.Orchestrator
	Proposals    *proposal.Process
	// Leads is nil when no enrichment provider is configured
	Leads *lead.Process

	closers []func()
}

// Close releases the connections in reverse order of creation
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// New connects to the backends in cfg and builds the sagas on top of them
func New(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Stack, error) {
	s := &Stack{}
	if err := s.build(cfg, logger, reg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) build(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) error {
	var err error

	s.DB, err = db.New(db.Options{
		URI:    cfg.PostgresURI,
		Logger: logger,
	})
	if err != nil {
		return extErrors.Wrap(err, "Cannot connect to database")
	}

	s.Metrics, err = metrics.NewSaga(reg)
	if err != nil {
		return err
	}

	locker, err := s.newLocker(cfg, logger)
	if err != nil {
		return err
	}

	var producer *broker.AMQPBroker
	if cfg.AMQPURI != "" {
		producer, err = broker.NewAMQPBroker(cfg.AMQPURI)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, producer.Close)
	} else {
		logger.Info("AMQP_URI is not set, saga events will not be published")
	}

	engine, err := workflow.NewZeebe(workflow.ZeebeOptions{
		GatewayAddress: cfg.Zeebe.Address,
		Plaintext:      cfg.Zeebe.Plaintext,
		MessageTTL:     cfg.Zeebe.MessageTTL,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() { engine.Close() })

	stripeGateway, err := gateway.NewStripe(gateway.StripeOptions{
		Client: external.NewStripeClient(external.StripeOptions{
			Key:               cfg.Stripe.Key,
			URL:               cfg.Stripe.URL,
			Timeout:           cfg.CallTimeout,
			MaxNetworkRetries: cfg.Stripe.MaxRetries,
			Logger:            logger,
		}),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	erpClient, err := erp.NewHTTPClient(erp.HTTPClientOptions{
		BaseURL:     cfg.ERP.BaseURL,
		APIKey:      cfg.ERP.APIKey,
		ReadRetries: cfg.ERP.ReadRetries,
		HTTPClient:  &http.Client{Timeout: cfg.CallTimeout},
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	subscriptions, err := subscription.NewManager(subscription.ManagerOptions{
		DB:     s.DB,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	recorder, err := saga.NewRecorder(saga.RecorderOptions{
		DB:     s.DB,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	options := orchestrator.Options{
		Subscriptions: subscriptions,
		Gateway:       stripeGateway,
		ERP:           erpClient,
		Workflow:      engine,
		Locker:        locker,
		Recorder:      recorder,
		Metrics:       s.Metrics,
		Logger:        logger,
		CallTimeout:   cfg.CallTimeout,
	}
	if producer != nil {
		options.Producer = producer
	}
	s.Orchestrator, err = orchestrator.New(options)
	if err != nil {
		return err
	}

	proposals, err := proposal.NewManager(proposal.ManagerOptions{
		DB:     s.DB,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	s.Proposals, err = proposal.NewProcess(proposal.ProcessOptions{
		Proposals:   proposals,
		Workflow:    engine,
		Locker:      locker,
		Producer:    options.Producer,
		Metrics:     s.Metrics,
		Logger:      logger,
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		return err
	}

	providers, err := newProviders(cfg)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		logger.Info("No enrichment provider is configured, leads are disabled")
		return nil
	}
	enricher, err := enrichment.NewEnricher(enrichment.EnricherOptions{
		Providers: providers,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	leads, err := lead.NewManager(lead.ManagerOptions{
		DB:     s.DB,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	s.Leads, err = lead.NewProcess(lead.ProcessOptions{
		Leads:       leads,
		Enricher:    enricher,
		Workflow:    engine,
		Locker:      locker,
		Producer:    options.Producer,
		Metrics:     s.Metrics,
		Logger:      logger,
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Stack) newLocker(cfg config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.RedisURI == "" {
		logger.Warn("REDIS_URI is not set, locks only hold within this process")
		return lock.NewLocal(), nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisURI},
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if _, err := rdb.Ping().Result(); err != nil {
		rdb.Close()
		return nil, extErrors.Wrap(err, "Cannot connect to Redis")
	}
	s.closers = append(s.closers, func() { rdb.Close() })

	locker, err := lock.NewRedis(lock.RedisOptions{
		Client: rdb,
		Logger: logger,
		TTL:    cfg.LockTTL,
	})
	if err != nil {
		return nil, err
	}
	return locker, nil
}

func newProviders(cfg config.Config) ([]enrichment.Provider, error) {
	client := &http.Client{Timeout: cfg.CallTimeout}
	constructors := []struct {
		p   config.Provider
		new func(enrichment.HTTPProviderOptions) (*enrichment.HTTPProvider, error)
	}{
		{cfg.LinkedIn, enrichment.NewLinkedIn},
		{cfg.Clearbit, enrichment.NewClearbit},
		{cfg.Hunter, enrichment.NewHunter},
	}

	providers := make([]enrichment.Provider, 0, len(constructors))
	for _, c := range constructors {
		if c.p.URL == "" {
			continue
		}
		p, err := c.new(enrichment.HTTPProviderOptions{
			BaseURL:    c.p.URL,
			APIKey:     c.p.Key,
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}
