// Command sync runs one dashboard job and exits, for external schedulers
// that invoke a binary rather than an HTTP endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/mailpro-dashboard/internal/app"
	"github.com/ignite/mailpro-dashboard/internal/config"
	"github.com/ignite/mailpro-dashboard/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	job := flag.String("job", app.JobSync, "job to run: sync or daily-report")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(false); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer services.Close()

	msg, err := services.Jobs().Run(ctx, *job)
	if err != nil {
		logger.Error("job failed", "job", *job, "err", err)
		services.Close()
		os.Exit(1)
	}
	logger.Info("job finished", "job", *job, "result", msg)
}
