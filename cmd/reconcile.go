package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-orchestration/internal/gateway"
	"github.com/frahmantamala/payment-orchestration/internal/observability"
	paymentpostgres "github.com/frahmantamala/payment-orchestration/internal/payment/postgres"
	"github.com/frahmantamala/payment-orchestration/internal/reconciliation"
	reconciliationpostgres "github.com/frahmantamala/payment-orchestration/internal/reconciliation/postgres"
	"github.com/frahmantamala/payment-orchestration/pkg/logger"
)

var (
	reconcileCmd = &cobra.Command{
		RunE:  runReconciliation,
		Use:   "reconcile",
		Short: "run a one-off reconciliation pass and print the report",
	}
	reconcileDate string
)

func init() {
	reconcileCmd.Flags().StringVar(&reconcileDate, "date", "", "date to reconcile (YYYY-MM-DD), defaults to yesterday")
}

func runReconciliation(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	logger.Init(os.Getenv("APP_ENV"), cfg.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	date := time.Now().AddDate(0, 0, -1)
	if reconcileDate != "" {
		date, err = time.Parse("2006-01-02", reconcileDate)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", reconcileDate, err)
		}
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialize gorm: %w", err)
	}

	metrics := observability.NewMetrics()
	pixGateway := gateway.NewPixGateway(cfg.Gateways.Pix, lg)
	cardGateway := gateway.NewCardGateway(cfg.Gateways.Card, lg)
	boletoGateway := gateway.NewBoletoGateway(cfg.Gateways.Boleto, lg)
	selector := gateway.NewSelector(pixGateway, cardGateway, boletoGateway, lg)
	executor := gateway.NewExecutor(cfg.Resilience, metrics, lg)

	service := reconciliation.NewService(
		paymentpostgres.NewPaymentRepository(gormDB),
		reconciliationpostgres.NewReportRepository(gormDB),
		gateway.NewStatusService(selector, executor),
		cfg.Reconciliation,
		metrics,
		lg,
	)

	report, err := service.Reconcile(context.Background(), date)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
