package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtgscribe/gateway/analytics"
	"github.com/mtgscribe/gateway/config"
	"github.com/mtgscribe/gateway/costengine"
	"github.com/mtgscribe/gateway/credvault"
	"github.com/mtgscribe/gateway/db"
	"github.com/mtgscribe/gateway/handler"
	"github.com/mtgscribe/gateway/logger"
	gwmw "github.com/mtgscribe/gateway/middleware"
	"github.com/mtgscribe/gateway/observability"
	"github.com/mtgscribe/gateway/orchestrator"
	"github.com/mtgscribe/gateway/provider"
	"github.com/mtgscribe/gateway/redisclient"
	"github.com/mtgscribe/gateway/router"
	"github.com/mtgscribe/gateway/sessionmgr"
	"github.com/mtgscribe/gateway/tokenledger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("mtg rules gateway starting")

	rows, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := rows.InitSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	kv, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	if err := kv.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed at startup")
	} else {
		log.Info().Msg("redis connected")
	}

	vault := credvault.New(credvault.Params{
		Time:      cfg.KDFTime,
		MemoryKiB: cfg.KDFMemoryKiB,
		Threads:   cfg.KDFThreads,
		KeyLen:    32,
	}, cfg.KDFMaxParallel)

	sessions := sessionmgr.New(kv, rows, vault)

	pricing := map[string]costengine.ModelPricing{
		cfg.UpstreamModel: {InputPer1M: 3.0, OutputPer1M: 15.0},
	}

	pdConfig := observability.DefaultPagerDutyConfig()
	pdConfig.RoutingKey = cfg.PagerDutyRoutingKey
	pdConfig.Enabled = cfg.PagerDutyRoutingKey != ""
	pagerDuty := observability.NewPagerDutyClient(pdConfig, log)

	cost := costengine.New(rows, kv, pagerDuty, log, pricing, cfg.GlobalDailyBudgetMillicents, cfg.CostAlertThresholds)
	ledger := tokenledger.New(rows)

	metrics := observability.NewMetrics(log)

	var auditSink analytics.Sink = analytics.NewLogSink(log)
	audit := analytics.NewPipeline(log, auditSink)
	audit.Start(context.Background())

	poolMetrics := &provider.Metrics{}
	httpClient := provider.NewHTTPClient(provider.DefaultPoolConfig(), cfg.LLMCallDeadline+5*time.Second, poolMetrics)
	llm := provider.NewClient(provider.Config{
		BaseURL:    cfg.UpstreamBaseURL,
		APIKey:     cfg.UpstreamAPIKey,
		Model:      cfg.UpstreamModel,
		Deadline:   cfg.LLMCallDeadline,
		MaxRetries: 2,
	}, httpClient)

	healthPoller := provider.NewHealthPoller(cfg.UpstreamBaseURL, httpClient, log, 30*time.Second)
	healthPoller.Start()

	turn := orchestrator.New(rows, llm, cost, ledger, cfg, log, metrics, audit)

	rateLimit := gwmw.NewRateLimiter(kv, cfg, ledger, cost, log)
	sessionReader := gwmw.NewSessionCookieReader(sessions, cfg)

	deps := router.Deps{
		Auth:          handler.NewAuthHandler(sessions, cfg, log),
		Chat:          handler.NewChatHandler(turn, rows, log),
		Conversations: handler.NewConversationHandler(rows, log),
		Health:        handler.NewHealthHandler(rows, kv, healthPoller),
		Sessions:      sessionReader,
		RateLimit:     rateLimit,
		Metrics:       metrics,
	}

	r := router.New(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DefaultTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	healthPoller.Stop()
	audit.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("gateway stopped gracefully")
	}
}
