package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lojinha/storefront/internal/api"
	"github.com/lojinha/storefront/internal/db"
	"github.com/lojinha/storefront/internal/events"
	"github.com/lojinha/storefront/internal/mailer"
	"github.com/lojinha/storefront/internal/metrics"
	"github.com/lojinha/storefront/internal/payments"
	"github.com/lojinha/storefront/internal/services"
	"github.com/lojinha/storefront/internal/tokens"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry metrics
	appMetrics, shutdownMetrics, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("error shutting down meter provider", slog.String("error", err.Error()))
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	appMetrics.SetDBSystem(database.System())

	if migrate {
		if err := database.Migrate(ctx); err != nil {
			return err
		}
	}

	publisher, err := events.New(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	gateway := payments.New(cfg)

	productService := services.NewProductService(database, appMetrics, cfg.InstallmentsMax, cfg.InstallmentsMinPerCents)
	categoryService := services.NewCategoryService(database, appMetrics)
	cartService := services.NewCartService(database, appMetrics, productService)
	orderService := services.NewOrderService(database, appMetrics, productService, cartService,
		gateway, mailer.New(cfg), publisher, tokens.NewGenerator(cfg.PublicTokenSecret),
		services.OrderOptions{
			OTPTTL:                  cfg.OTPTTL,
			StockZeroMeansUnlimited: cfg.StockZeroMeansUnlimited,
			OrderURL:                cfg.OrderURL,
		})

	go orderService.MonitorPendingOrders(ctx, cfg.PendingMonitorInterval)

	app := api.NewApp(cfg, database, appMetrics, productService, categoryService, cartService, orderService)
	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			slog.String("port", cfg.AppPort),
			slog.String("payment_provider", gateway.Name()),
			slog.String("otlp_endpoint", cfg.OTELExporterOTLPEndpoint))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited")
	return nil
}
