package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/repoinsight-dev/repoinsight/internal/gateway"
	"github.com/repoinsight-dev/repoinsight/internal/notify"
	"github.com/repoinsight-dev/repoinsight/internal/remote"
	"github.com/repoinsight-dev/repoinsight/internal/router"
	"github.com/repoinsight-dev/repoinsight/internal/scheduler"
	"github.com/repoinsight-dev/repoinsight/pkg/config"
	"github.com/repoinsight-dev/repoinsight/pkg/observability"
	"github.com/repoinsight-dev/repoinsight/pkg/session"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	httpPort   = flag.Int("http-port", getEnvInt("PORT", 0), "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("Starting RepoInsight orchestrator v%s", Version)

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
		cfg = loaded
	}
	if *httpPort > 0 {
		cfg.HTTPPort = *httpPort
	}

	// Session store: Redis when configured, in-memory otherwise.
	var store session.Store
	if cfg.RedisAddr != "" {
		rs, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			log.Fatalf("Connect session store: %v", err)
		}
		store = rs
	} else {
		log.Println("No redis_addr configured, using in-memory session store")
		store = session.NewMemoryStore()
	}

	client := remote.NewClient(remote.Config{
		BaseURL:       cfg.RemoteBaseURL,
		Timeout:       cfg.RequestTimeout,
		PollPerSecond: cfg.PollPerSecond,
		PollBurst:     cfg.PollBurst,
	})

	locks := session.NewKeyedMutex()
	notifier := notify.LogNotifier{}

	rt := router.New(router.Config{
		MaxQuestionLen:  cfg.MaxQuestionLen,
		EmbeddingConfig: cfg.EmbeddingConfig,
		LLMConfig:       cfg.LLMConfig,
	}, store, locks, client)

	gw := gateway.New(gateway.Config{
		EnablePrivateChat:     cfg.EnablePrivateChat,
		EnableGroupChat:       cfg.EnableGroupChat,
		RequireMentionInGroup: cfg.RequireMentionInGroup,
	}, rt)

	sched := scheduler.New(scheduler.Config{
		AnalysisInterval:    cfg.AnalysisPollInterval,
		QueryInterval:       cfg.QueryPollInterval,
		EvictionInterval:    cfg.EvictionInterval,
		InactivityThreshold: cfg.InactivityThreshold,
	}, store, locks, client, notifier)

	// Observability surface
	observability.InitMetrics()
	checker := observability.NewHealthChecker()
	checker.RegisterCheck(observability.HealthCheck{
		Name:      "session-store",
		CheckFunc: store.Ping,
		Critical:  true,
	})
	checker.RegisterCheck(observability.HealthCheck{
		Name: "analysis-service",
		CheckFunc: func(ctx context.Context) error {
			if !client.ProbeHealth(ctx) {
				return errors.New("analysis service unreachable")
			}
			return nil
		},
	})

	obsServer := observability.NewServer(cfg.HTTPPort, checker)
	obsServer.Handle("/messages", gw.Handler())

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		log.Printf("Starting HTTP server on :%d", cfg.HTTPPort)
		if err := obsServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := sched.Run(runCtx); err != nil {
			errChan <- fmt.Errorf("scheduler error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Error: %v", err)
	case <-quit:
		log.Println("Shutting down orchestrator...")
	}

	// Graceful shutdown: stop the loops first, then release the transport and
	// the store.
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := obsServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	client.Close()
	if err := store.Close(); err != nil {
		log.Printf("Session store close error: %v", err)
	}

	log.Println("Orchestrator stopped")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
