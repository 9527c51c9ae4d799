package main

import (
	"embed"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/alfani/backoffice/internal/app"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

func main() {
	down := flag.Bool("down", false, "revert the most recent migration instead of applying pending ones")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	source, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		logger.Error("open migration source", slog.Any("error", err))
		os.Exit(1)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "pgx5://"+trimScheme(cfg.PGDSN))
	if err != nil {
		logger.Error("init migrate", slog.Any("error", err))
		os.Exit(1)
	}
	defer m.Close()

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations up to date")
}

// trimScheme strips the postgres:// prefix so the pgx5 driver scheme can be
// substituted.
func trimScheme(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if len(dsn) > len(prefix) && dsn[:len(prefix)] == prefix {
			return dsn[len(prefix):]
		}
	}
	return dsn
}
