package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zllovesuki/billing-orchestrator/auth"
	"github.com/zllovesuki/billing-orchestrator/bootstrap"
	"github.com/zllovesuki/billing-orchestrator/config"
	"github.com/zllovesuki/billing-orchestrator/lead"
	"github.com/zllovesuki/billing-orchestrator/orchestrator"
	"github.com/zllovesuki/billing-orchestrator/proposal"
	resp "github.com/zllovesuki/billing-orchestrator/response"

	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	mint := flag.String("mint", "", "print a bearer token for the named caller and exit")
	mintTTL := flag.Duration("mint-ttl", 24*time.Hour, "lifetime of the token printed by -mint")
	flag.Parse()

	// Determine running environment and load configurations
	dotFile, env := config.DotFile(os.Getenv("ENV"))
	cfg, err := config.Load(dotFile, env)
	if err != nil {
		log.Fatalf("Cannot load configurations: %v\n", err)
	}

	logger, flush, err := bootstrap.Logger(env, "api", Version)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	authenticator, err := auth.New(auth.Options{
		Logger:        logger,
		JWTSigningKey: cfg.JWTSigningKey,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Auth",
			zap.Error(err),
		)
	}

	if *mint != "" {
		token, err := authenticator.CreateToken(*mint, *mintTTL)
		if err != nil {
			logger.Fatal("Cannot mint token",
				zap.Error(err),
			)
		}
		fmt.Println(token)
		return
	}

	stack, err := bootstrap.New(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("Cannot initialize backends",
			zap.Error(err),
		)
	}
	defer stack.Close()

	sagaService, err := orchestrator.NewService(orchestrator.ServiceOptions{
		Orchestrator: stack.Orchestrator,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Subscription Service Router",
			zap.Error(err),
		)
	}

	proposalService, err := proposal.NewService(proposal.ServiceOptions{
		Process: stack.Proposals,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Cannot initialize Proposal Service Router",
			zap.Error(err),
		)
	}

	rootRouter := chi.NewRouter()
	rootRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	rootRouter.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrNotFound())
	})
	rootRouter.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resp.WriteError(w, r, resp.ErrMethodNotAllowed())
	})

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	if cfg.Stripe.WebhookSecret != "" {
		webhookService, err := orchestrator.NewWebhookService(orchestrator.WebhookServiceOptions{
			Orchestrator: stack.Orchestrator,
			Secret:       cfg.Stripe.WebhookSecret,
			Logger:       logger,
		})
		if err != nil {
			logger.Fatal("Cannot initialize Webhook Service Router",
				zap.Error(err),
			)
		}
		rootRouter.Mount("/webhooks/stripe", webhookService.Router())
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET is not set, gateway webhooks are disabled")
	}

	rootRouter.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware())

		r.Mount("/subscriptions", sagaService.SubscriptionRouter())
		r.Mount("/payments", sagaService.PaymentRouter())
		r.Mount("/proposals", proposalService.Router())

		if stack.Leads != nil {
			leadService, err := lead.NewService(lead.ServiceOptions{
				Process: stack.Leads,
				Logger:  logger,
			})
			if err != nil {
				logger.Fatal("Cannot initialize Lead Service Router",
					zap.Error(err),
				)
			}
			r.Mount("/leads", leadService.Router())
		}
	})

	srv := &http.Server{
		Handler: rootRouter,
		Addr:    cfg.ListenAddr,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("API server started", zap.String("Addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server stopped",
				zap.Error(err),
			)
		}
	}()

	<-c

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout*2)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Cannot shutdown API server gracefully",
			zap.Error(err),
		)
	}
}
