package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-orchestration/internal"
	"github.com/frahmantamala/payment-orchestration/internal/gateway"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
	"github.com/frahmantamala/payment-orchestration/internal/payment"
	paymentpostgres "github.com/frahmantamala/payment-orchestration/internal/payment/postgres"
	"github.com/frahmantamala/payment-orchestration/internal/reconciliation"
	reconciliationpostgres "github.com/frahmantamala/payment-orchestration/internal/reconciliation/postgres"
	"github.com/frahmantamala/payment-orchestration/internal/transport/rest"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Router    *chi.Mux
	Logger    *slog.Logger
	Scheduler *reconciliation.Scheduler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if deps.Scheduler != nil {
		deps.Scheduler.Start()
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if deps.Scheduler != nil {
			deps.Scheduler.Stop()
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"), config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	metrics := observability.NewMetrics()

	pixGateway := gateway.NewPixGateway(config.Gateways.Pix, lg)
	cardGateway := gateway.NewCardGateway(config.Gateways.Card, lg)
	boletoGateway := gateway.NewBoletoGateway(config.Gateways.Boleto, lg)

	selector := gateway.NewSelector(pixGateway, cardGateway, boletoGateway, lg)
	selector.ValidateConfiguration()

	executor := gateway.NewExecutor(config.Resilience, metrics, lg)

	paymentRepo := paymentpostgres.NewPaymentRepository(gormDB)
	paymentService := payment.NewService(paymentRepo, selector, executor, payment.Deadlines{
		PixExpiration: config.Gateways.Pix.Expiration,
		BoletoDueDays: config.Gateways.Boleto.DueDays,
	}, metrics, lg)
	paymentHandler := payment.NewHandler(paymentService)

	reportRepo := reconciliationpostgres.NewReportRepository(gormDB)
	statusService := gateway.NewStatusService(selector, executor)
	reconciliationService := reconciliation.NewService(paymentRepo, reportRepo, statusService, config.Reconciliation, metrics, lg)
	reconciliationHandler := reconciliation.NewHandler(reconciliationService)

	var scheduler *reconciliation.Scheduler
	if config.Reconciliation.Enabled {
		scheduler = reconciliation.NewScheduler(reconciliationService, config.Reconciliation.ScheduleHour, lg)
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, paymentHandler, reconciliationHandler, rest.RouterConfig{
		MetricsEnabled: config.Observability.Metrics.Enabled,
		MetricsPath:    config.Observability.Metrics.Path,
		MetricsHandler: metrics.Handler(),
	}, lg)

	return &Dependencies{
		Config:    config,
		DB:        db,
		Router:    router,
		Logger:    lg,
		Scheduler: scheduler,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
