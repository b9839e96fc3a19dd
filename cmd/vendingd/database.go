package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/vending/internal/config"
	"github.com/MarkoPoloResearchLab/vending/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/vending/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	driverPostgres    = "postgres"
	driverSQLite      = "sqlite"
	defaultSQLiteFile = "vending.db"
)

// storeBackend bundles the selected store with its lifecycle hooks.
type storeBackend struct {
	store vending.Store
	ping  func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *config.Config) (storeBackend, error) {
	if cfg.Store == config.StorePgx {
		return openPgxStore(ctx, cfg.DatabaseURL)
	}
	return openGormStore(ctx, cfg.DatabaseURL)
}

func openPgxStore(ctx context.Context, dsn string) (storeBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return storeBackend{}, fmt.Errorf("database open: %w", err)
	}
	store := pgstore.New(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return storeBackend{}, err
	}
	return storeBackend{store: store, ping: pool.Ping, close: pool.Close}, nil
}

func openGormStore(ctx context.Context, dsn string) (storeBackend, error) {
	db, err := openDatabase(dsn)
	if err != nil {
		return storeBackend{}, fmt.Errorf("database open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return storeBackend{}, err
	}
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return storeBackend{}, err
	}
	return storeBackend{
		store: store,
		ping:  sqlDB.PingContext,
		close: func() { _ = sqlDB.Close() },
	}, nil
}

func openDatabase(dsn string) (*gorm.DB, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, err
	}
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
	switch driver {
	case driverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err := gorm.Open(sqlite.Open(sqlitePath), cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows one writer; a single connection also keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
}

func resolveDriver(dsn string) (string, string, error) {
	if config.IsPostgresURL(dsn) {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if filepath.IsAbs(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	relative := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(relative), 0o755); err != nil {
		return "", err
	}
	return relative, nil
}
