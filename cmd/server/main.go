package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"rastreio-bot/internal/config"
	"rastreio-bot/internal/handler"
	"rastreio-bot/internal/metrics"
	"rastreio-bot/internal/middleware"
	"rastreio-bot/internal/model"
	"rastreio-bot/internal/realtime"
	"rastreio-bot/internal/repository"
	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

func main() {
	// Create .env from .env.example if not exists
	if err := ensureEnvFile(); err != nil {
		log.Printf("Warning: Failed to create .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Starting order notification service")

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Order store
	db, err := repository.Open(cfg.Database.Path)
	if err != nil {
		appLogger.Error("Failed to open order database", "error", err, "path", cfg.Database.Path)
		log.Fatalf("Failed to open order database: %v", err)
	}
	defer db.Close()

	orders := repository.NewOrderRepository(db)
	history := repository.NewHistoryRepository(db)
	locks := service.NewKeyLocker()

	// Initialize WhatsApp service
	whatsappService, err := service.NewWhatsAppService(ctx, &cfg.WhatsApp, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize WhatsApp service", "error", err)
		log.Fatalf("Failed to initialize WhatsApp service: %v", err)
	}
	defer whatsappService.Close()

	hub := realtime.NewHub(&cfg.Realtime, appLogger)

	var terminal io.Writer
	if cfg.WhatsApp.PrintQR {
		terminal = os.Stdout
	}
	session := service.NewSessionManager(whatsappService, service.NewQRRenderer(terminal), hub, appLogger)
	hub.Publish(model.NewStatusUpdateEvent(session.Snapshot()))

	// Engines
	dispatcher := service.NewDispatchEngine(orders, history, whatsappService, hub, locks, cfg.WhatsApp.SendTimeout, appLogger)
	poller := service.NewTrackingPoller(orders, service.NewSiteRastreioClient(&cfg.Tracking, appLogger), hub, appLogger)
	inbound := service.NewInboundRouter(orders, history, whatsappService, hub, appLogger)
	orderService := service.NewOrderService(orders, history, whatsappService, hub, locks, cfg.WhatsApp.SendTimeout, appLogger)
	orderService.NotifyWith(dispatcher, session.IsConnected)

	if cfg.Tracking.APIKey == "" {
		appLogger.Warn("SITERASTREIO_API_KEY not set, carrier lookups will be rejected")
	}

	scheduler := service.NewScheduler(appLogger,
		service.PeriodicTask{
			Name:     "dispatch",
			Interval: cfg.Dispatch.Interval,
			Run: service.WhenConnected(session.IsConnected, func(ctx context.Context) error {
				_, err := dispatcher.EvaluateAndDispatch(ctx)
				return err
			}),
		},
		service.PeriodicTask{
			Name:     "tracking-poll",
			Interval: cfg.Tracking.PollInterval,
			Run: service.WhenConnected(session.IsConnected, func(ctx context.Context) error {
				_, err := poller.Poll(ctx)
				return err
			}),
		},
	)

	// Initialize middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.APIKey, appLogger)
	router := handler.NewRouter(handler.Handlers{
		Health:      handler.NewHealthHandler(session, hub, orders, cfg, appLogger),
		Orders:      handler.NewOrderHandler(orderService, appLogger),
		Session:     handler.NewSessionHandler(ctx, session, appLogger),
		Integration: handler.NewIntegrationHandler(orderService, appLogger),
		Realtime:    hub,
	}, authMiddleware, cfg.Server.CORSAllowedOrigins, appLogger)

	// Create HTTP server. No write timeout: /ws connections are long lived.
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return session.Run(gctx)
	})
	g.Go(func() error {
		return inbound.Run(gctx, whatsappService.Messages())
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		hub.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.WhatsApp.AutoConnect && whatsappService.HasSession() {
		g.Go(func() error {
			if err := session.RequestConnect(gctx); err != nil {
				appLogger.Error("Auto connect failed", "error", err)
			}
			return nil
		})
	} else {
		appLogger.Info("Waiting for POST /api/whatsapp/connect to start a session")
	}

	appLogger.Info("Order notification service started",
		"address", addr,
		"dispatch_interval", cfg.Dispatch.Interval.String(),
		"poll_interval", cfg.Tracking.PollInterval.String(),
	)

	if err := g.Wait(); err != nil {
		appLogger.Error("Service stopped with error", "error", err)
		whatsappService.Close()
		db.Close()
		log.Fatalf("Service stopped with error: %v", err)
	}

	appLogger.Info("Server stopped gracefully")
}

// ensureEnvFile creates .env from .env.example if .env doesn't exist
func ensureEnvFile() error {
	if _, err := os.Stat(".env"); err == nil {
		return nil
	}

	if _, err := os.Stat(".env.example"); os.IsNotExist(err) {
		return fmt.Errorf(".env.example not found")
	}

	source, err := os.Open(".env.example")
	if err != nil {
		return fmt.Errorf("failed to open .env.example: %w", err)
	}
	defer source.Close()

	destination, err := os.Create(".env")
	if err != nil {
		return fmt.Errorf("failed to create .env: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("failed to copy .env.example to .env: %w", err)
	}

	log.Println("Created .env file from .env.example")
	return nil
}
