package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zllovesuki/billing-orchestrator/bootstrap"
	"github.com/zllovesuki/billing-orchestrator/config"
	"github.com/zllovesuki/billing-orchestrator/orchestrator"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Build-time injected variables
var (
	Version = ""
)

func main() {
	once := flag.Bool("once", false, "run a single recovery sweep and exit")
	batch := flag.Int("batch", 50, "maximum subscriptions resumed per sweep")
	flag.Parse()

	// Determine running environment and load configurations
	dotFile, env := config.DotFile(os.Getenv("ENV"))
	cfg, err := config.Load(dotFile, env)
	if err != nil {
		log.Fatalf("Cannot load configurations: %v\n", err)
	}

	logger, flush, err := bootstrap.Logger(env, "task", Version)
	if err != nil {
		log.Fatalf("Cannot initialize logger: %v\n", err)
	}
	defer flush()

	stack, err := bootstrap.New(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Fatal("Cannot initialize backends",
			zap.Error(err),
		)
	}
	defer stack.Close()

	recoveryTask, err := orchestrator.NewTask(orchestrator.TaskOptions{
		Orchestrator: stack.Orchestrator,
		Logger:       logger,
		Interval:     cfg.RecoveryInterval,
		Grace:        cfg.RecoveryGrace,
		BatchSize:    *batch,
	})
	if err != nil {
		logger.Fatal("Cannot get recovery task",
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		resumed, err := recoveryTask.Sweep(ctx)
		if err != nil {
			logger.Error("Recovery sweep failed",
				zap.Error(err),
			)
			return
		}
		logger.Info("Recovery sweep finished", zap.Int("Resumed", resumed))
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		recoveryTask.Run(ctx)
		close(done)
	}()

	logger.Info("Recovery task started")

	<-c
	cancel()
	<-done
}
