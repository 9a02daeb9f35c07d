package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	_ "modernc.org/sqlite"

	"github.com/mcoot/credauth/internal/storage/sqldb/migrations"
)

// Open connects to the configured database and wraps it in bun.
// Migrations are applied first when cfg.AutoMigrate is set.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driverName, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	// Each connection to ":memory:" is a separate database
	if cfg.Driver == DriverSQLite && cfg.DSN == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, sqlDB, cfg.Driver); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	return bun.NewDB(sqlDB, dialect(cfg.Driver)), nil
}

// driverDSN maps the configured driver to a database/sql driver name and
// applies connection settings the store depends on
func driverDSN(cfg Config) (string, string, error) {
	switch cfg.Driver {
	case DriverPostgres:
		// pgx/v5/stdlib registers as "pgx"
		return "pgx", cfg.DSN, nil
	case DriverMySQL:
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Collation = "utf8mb4_unicode_ci"
		// UPDATE must report matched rows, not changed rows
		mc.ClientFoundRows = true
		if mc.Params == nil {
			mc.Params = map[string]string{}
		}
		mc.Params["charset"] = "utf8mb4"
		return "mysql", mc.FormatDSN(), nil
	default:
		return "sqlite", cfg.DSN, nil
	}
}

func dialect(driver string) schema.Dialect {
	switch driver {
	case DriverPostgres:
		return pgdialect.New()
	case DriverMySQL:
		return mysqldialect.New()
	default:
		return sqlitedialect.New()
	}
}

// gooseDialect maps a driver to its goose dialect name
func gooseDialect(driver string) string {
	switch driver {
	case DriverPostgres:
		return "postgres"
	case DriverMySQL:
		return "mysql"
	default:
		return "sqlite3"
	}
}

// Migrate applies all pending embedded migrations
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect(driver)); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
