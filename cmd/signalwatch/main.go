package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rewired-gh/signalwatch/internal/config"
	"github.com/rewired-gh/signalwatch/internal/control"
	"github.com/rewired-gh/signalwatch/internal/httpapi"
	"github.com/rewired-gh/signalwatch/internal/logger"
	"github.com/rewired-gh/signalwatch/internal/notify"
	"github.com/rewired-gh/signalwatch/internal/poller"
	"github.com/rewired-gh/signalwatch/internal/scheduler"
	"github.com/rewired-gh/signalwatch/internal/storage"
	"github.com/rewired-gh/signalwatch/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	once       = flag.Bool("once", false, "Run a single polling cycle and exit")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage, cfg.Signals.DefaultServer, cfg.History.Capacity)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()
	logger.Info("Storage ready (driver: %s)", cfg.Storage.Driver)

	var telegramClient *telegram.Client
	sinks := notify.Multi{notify.LogSink{}}
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.RatePerSecond,
			cfg.History.Capacity,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		sinks = append(sinks, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	p := poller.New(store, poller.HTTPFetchers(cfg.Signals.Timeout), sinks, cfg.Signals.Limit)

	if *once {
		report, err := p.RunCycle(ctx)
		if err != nil {
			logger.Error("Polling cycle failed: %v", err)
			return
		}
		logger.Info("Polling cycle done: %d fetched, %d new, %d notified", report.Fetched, report.New, report.Notified)
		return
	}

	sched := scheduler.New(scheduler.Options{
		RetryDelay:    cfg.Scheduler.RetryDelay,
		RetryMaxDelay: cfg.Scheduler.RetryMaxDelay,
	})
	job := withFailureAlerts(p.Job(), telegramClient)
	if err := sched.RegisterPeriodic(cfg.Scheduler.JobName, cfg.Signals.PollInterval, job); err != nil {
		logger.Fatal("Failed to register polling job: %v", err)
	}

	ctrl := control.New(store, control.HTTPClients(cfg.Signals.Timeout), sched, cfg.Scheduler.JobName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, ctrl)
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.NewRouter(ctrl),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP API listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP API stopped: %v", err)
			}
		}()
	}

	logger.Info("Starting polling service (interval: %v, limit: %d, job: %s)",
		cfg.Signals.PollInterval,
		cfg.Signals.Limit,
		cfg.Scheduler.JobName,
	)

	sched.Start(ctx)
	logger.Debug("Running initial polling cycle")
	sched.Trigger(cfg.Scheduler.JobName)

	<-ctx.Done()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down HTTP API: %v", err)
		}
		shutdownCancel()
	}
	sched.Stop()
	logger.Info("Service stopped")
}

// withFailureAlerts reports the first failure of a consecutive run of
// failures, and the recovery that ends it, to Telegram.
func withFailureAlerts(job scheduler.Job, tg *telegram.Client) scheduler.Job {
	consecutiveFailures := 0
	return func(ctx context.Context) error {
		err := job(ctx)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures == 1 && tg != nil {
				if sendErr := tg.SendError(ctx, err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
			return err
		}
		if consecutiveFailures > 0 && tg != nil {
			if sendErr := tg.SendRecovery(ctx, consecutiveFailures); sendErr != nil {
				logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
			}
		}
		consecutiveFailures = 0
		return nil
	}
}
