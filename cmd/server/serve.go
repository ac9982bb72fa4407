package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/serenityjs/plugin-registry/internal/api/middleware"
	"github.com/serenityjs/plugin-registry/internal/api/rest"
	"github.com/serenityjs/plugin-registry/internal/approval"
	"github.com/serenityjs/plugin-registry/internal/catalog"
	"github.com/serenityjs/plugin-registry/internal/config"
	"github.com/serenityjs/plugin-registry/internal/github"
	"github.com/serenityjs/plugin-registry/internal/pkg/logger"
	"github.com/serenityjs/plugin-registry/internal/pkg/redact"
	"github.com/serenityjs/plugin-registry/internal/pkg/tracing"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

const serviceName = "plugin-registry"

func (a *app) serve(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	log, logCloser, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.JSON,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(log)
	log.Info("configuration loaded",
		"database_driver", cfg.Database.Driver,
		"github_api", cfg.GitHub.APIURL,
		"github_token", redact.Secret(cfg.GitHub.Token),
		"approval_channel", cfg.Approval.Channel,
		"approval_token", redact.Secret(cfg.Approval.Token),
		"discord_token", redact.Secret(cfg.Discord.Token),
		"webhook_url", redact.URL(cfg.Webhook.URL),
	)

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		ServiceName:  serviceName,
		Endpoint:     cfg.Tracing.Endpoint,
		Protocol:     cfg.Tracing.Protocol,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				log.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	repo, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer repo.Close()
	log.Info("registry opened", "driver", cfg.Database.Driver)

	platform := github.NewClient(github.Options{
		APIBaseURL:     cfg.GitHub.APIURL,
		RawBaseURL:     cfg.GitHub.RawURL,
		Token:          cfg.GitHub.Token,
		Timeout:        time.Duration(cfg.GitHub.TimeoutSec) * time.Second,
		RateLimit:      cfg.GitHub.RateLimitPerSec,
		RateBurst:      cfg.GitHub.RateLimitBurst,
		MaxSearchPages: cfg.GitHub.MaxSearchPages,
	})
	if cfg.GitHub.Token == "" {
		log.Warn("no github token configured, requests are unauthenticated and heavily rate limited")
	}

	notifier, discord, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}

	enricher := catalog.NewEnricher(platform, catalog.EnricherOptions{
		DefaultLogoURL: cfg.Discovery.DefaultLogoURL,
		Concurrency:    cfg.Discovery.EnrichConcurrency,
		Logger:         log.With("component", "enricher"),
	})
	cat := catalog.New(repo, catalog.NewCache(), enricher, platform, notifier, catalog.Options{
		Topic:         cfg.GitHub.Topic,
		Interval:      cfg.Discovery.Interval(),
		ClearInterval: cfg.Discovery.CacheClearInterval(),
		Logger:        log.With("component", "catalog"),
	})

	if discord != nil {
		if err := discord.Start(ctx, cat); err != nil {
			return err
		}
		defer discord.Close()
	}

	var approvals *rest.ApprovalHandler
	if cfg.Approval.Token != "" {
		approvals = rest.NewApprovalHandler(ctx, cat, cfg.Approval.Token, log)
	}

	router := mux.NewRouter()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.StructuredLog(log),
		middleware.Tracing,
		middleware.SecureHeaders,
		middleware.MaxBodySize(middleware.DefaultMaxBodyBytes),
	)
	rest.SetupRoutes(router, rest.NewHandler(cat, log), rest.NewHealthzHandler(cat), approvals)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.ResponseRequestIDHeader},
	})

	requestTimeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "port", cfg.Port, "topic", cfg.GitHub.Topic, "approval_channel", cfg.Approval.Channel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return cat.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server forced to shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if approvals != nil {
		approvals.Wait()
	}
	log.Info("server exited")
	return err
}

// newNotifier builds the configured approval channel. The Discord channel is
// also returned so it can be started once the catalog exists.
func newNotifier(cfg *config.Config, log *slog.Logger) (catalog.Notifier, *approval.Discord, error) {
	switch cfg.Approval.Channel {
	case "discord":
		d, err := approval.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID, log.With("component", "discord"))
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case "webhook":
		return approval.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Format, log.With("component", "webhook")), nil, nil
	default:
		return approval.NewLogNotifier(log.With("component", "approval")), nil, nil
	}
}
