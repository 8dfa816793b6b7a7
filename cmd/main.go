package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"SmartAd/internal/appmanager"
	"SmartAd/internal/config"
	"SmartAd/internal/migrations"
)

// InitDB opens the database/sql handle used for migrations.
func InitDB(cfg *config.Config) (*sql.DB, error) {
	return sql.Open("postgres", cfg.Database.ConnectionString())
}

// InitPool opens the pgx pool used by the services.
func InitPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func main() {
	// Load .env for local dev
	cfg, err := config.Load(".env", "../.env")
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	if cfg.RunMigrations {
		db, err := InitDB(cfg)
		if err != nil {
			log.Fatal("failed to connect to DB:", err)
		}
		if err := migrations.Up(db); err != nil {
			log.Fatal("failed to migrate:", err)
		}
		db.Close()
	}

	pool, err := InitPool(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to create pgx pool:", err)
	}
	defer pool.Close()

	manager := appmanager.NewAppManager(appmanager.Deps{Config: cfg, Pool: pool})

	// Load service configs from YAML
	servicesCfg, err := appmanager.LoadServiceSequence(cfg.ServicesFile)
	if err != nil {
		log.Fatal("failed to load service sequence:", err)
	}

	// Automatically register all services
	manager.AutoRegisterServices(servicesCfg)

	// Start all services
	if err := manager.StartAll(); err != nil {
		log.Fatal("failed to start:", err)
	}

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	// Stop all services
	if err := manager.StopAll(); err != nil {
		log.Fatal("failed to stop:", err)
	}
}
