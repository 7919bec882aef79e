package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type config struct {
	ClickhouseDSN string `long:"clickhouse-dsn" env:"SPVNODE_CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/default" description:"ClickHouse DSN for the header index"`
	MigrationsDir string `long:"migrations-dir" env:"SPVNODE_MIGRATIONS_DIR" default:"migrations/clickhouse" description:"Path to ClickHouse migration files"`
	// Steps applies n migrations forward or, when negative, rolls back n.
	Steps int  `long:"steps" description:"migrate this many steps instead of all the way up; negative rolls back"`
	Down  bool `long:"down" description:"roll back every migration"`
}

func main() {
	cfg := config{}
	if _, err := flags.Parse(&cfg); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		panic("failed to parse flags: " + err.Error())
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runMigrations(ctx, cfg, logger); err != nil {
		logger.Fatal("migration run failed", zap.Error(err))
	}
}

func sourceURL(migrationsDir string) (string, error) {
	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat migrations dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return "file://" + filepath.ToSlash(dir), nil
}

func runMigrations(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.Down && cfg.Steps != 0 {
		return errors.New("--down and --steps are exclusive")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := sourceURL(cfg.MigrationsDir)
	if err != nil {
		return err
	}
	m, err := migrate.New(src, cfg.ClickhouseDSN)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("migration source close error", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("migration database close error", zap.Error(dbErr))
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	switch {
	case cfg.Down:
		err = m.Down()
	case cfg.Steps != 0:
		err = m.Steps(cfg.Steps)
	default:
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", err)
	}
	logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
