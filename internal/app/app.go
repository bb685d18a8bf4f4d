// Package app wires configuration into the running services shared by the
// HTTP server and the one-shot job runner.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailpro-dashboard/internal/config"
	"github.com/ignite/mailpro-dashboard/internal/jobstatus"
	"github.com/ignite/mailpro-dashboard/internal/mailpro"
	"github.com/ignite/mailpro-dashboard/internal/notify"
	"github.com/ignite/mailpro-dashboard/internal/pkg/distlock"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
	"github.com/ignite/mailpro-dashboard/internal/store"
	"github.com/ignite/mailpro-dashboard/internal/syncer"
)

// App holds the constructed services.
type App struct {
	Config *config.Config
	Store  store.Store
	Redis  *redis.Client
	Status *jobstatus.Recorder
	Syncer *syncer.Syncer
	Daily  *syncer.DailyJob
}

// Build constructs every service from cfg. Redis is optional: when it is
// not configured or unreachable, job locking is disabled.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	client := mailpro.NewClient(mailpro.Config{
		BaseURL:        cfg.MailPro.BaseURL,
		PublicKey:      cfg.MailPro.PublicKey,
		Timeout:        cfg.MailPro.Timeout(),
		Retries:        cfg.MailPro.Retries,
		PageSize:       cfg.MailPro.PageSize,
		MaxConcurrency: cfg.MailPro.MaxConcurrency,
		ExcludeTerms:   cfg.MailPro.ExcludeNameTerms,
	})

	st, err := store.New(ctx, cfg.Storage, cfg.Sync.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	redisClient := connectRedis(ctx, cfg.Redis.URL)

	a := &App{
		Config: cfg,
		Store:  st,
		Redis:  redisClient,
		Status: jobstatus.NewRecorder(st),
		Syncer: syncer.New(client, st, distlock.NewFactory(redisClient), syncer.Options{
			MaxConcurrency:     cfg.MailPro.MaxConcurrency,
			SuppressionListUID: cfg.MailPro.SuppressionListUID,
			LockTTL:            cfg.Sync.LockTTL(),
		}),
	}

	a.Daily, err = buildDailyJob(ctx, cfg, st)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func buildDailyJob(ctx context.Context, cfg *config.Config, st store.Store) (*syncer.DailyJob, error) {
	mailer, err := notify.NewSESSender(ctx, cfg.Report.SESRegion, cfg.Report.SESAccessKey, cfg.Report.SESSecretKey)
	if err != nil {
		return nil, fmt.Errorf("initializing SES: %w", err)
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("initializing report templates: %w", err)
	}

	var summarizer notify.Summarizer = notify.TemplateSummarizer{}
	if cfg.Report.AISummary {
		bedrock, err := notify.NewBedrockSummarizer(ctx, cfg.Storage.AWSRegion, cfg.Report.BedrockModel)
		if err != nil {
			logger.Warn("Bedrock unavailable, using template summaries", "err", err)
		} else {
			summarizer = notify.FallbackSummarizer{
				Primary:   bedrock,
				Secondary: notify.TemplateSummarizer{},
				OnError: func(err error) {
					logger.Warn("Bedrock summary failed, using template", "err", err)
				},
			}
		}
	}

	var archive syncer.Archiver
	if cfg.Storage.S3Bucket != "" {
		s3Archive, err := notify.NewS3Archive(ctx, cfg.Storage.S3Bucket, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
		if err != nil {
			return nil, fmt.Errorf("initializing report archive: %w", err)
		}
		archive = s3Archive
	}

	return syncer.NewDailyJob(st, mailer, summarizer, renderer, archive, syncer.DailyOptions{
		Recipient: cfg.Report.Recipient,
		FromEmail: cfg.Report.FromEmail,
		FromName:  cfg.Report.FromName,
	}), nil
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("Redis not configured, job locking disabled")
		return nil
	}

	var client *redis.Client
	if opts, err := redis.ParseURL(url); err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis connection failed, job locking disabled", "err", err)
		client.Close()
		return nil
	}
	logger.Info("Redis connected, job locking enabled")
	return client
}

// Jobs returns a runner over the app's services.
func (a *App) Jobs() *Jobs {
	return NewJobs(a.Syncer, a.Daily, a.Status, a.Config.Report.Recipient)
}

// Close releases connections held by the app.
func (a *App) Close() error {
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
