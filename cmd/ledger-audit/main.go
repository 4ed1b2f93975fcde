package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/ledger-audit/audit"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/wagering/store/postgres"
)

// ledger-audit sai com código 1 quando alguma conta diverge do ledger.
func main() {
	cfg := config.Load()
	log, err := logger.New("ledger-audit", cfg.Env, cfg.LoggerOptions())
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresPool())
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	n, err := audit.Run(ctx, postgres.New(pg), os.Stdout)
	if err != nil {
		log.Fatal("ledger audit", zap.Error(err))
	}
	if n > 0 {
		log.Error("ledger discrepancies found", zap.Int("accounts", n))
		_ = log.Sync()
		os.Exit(1)
	}
}
