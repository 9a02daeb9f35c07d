package sqldb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/credauth/internal/dependencies/mocks"
	"github.com/mcoot/credauth/internal/storage"
	"github.com/mcoot/credauth/internal/storage/storagetest"
)

func openTestStorage(t *testing.T, clk *mocks.MockClock) *Storage {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig())
	require.NoError(t, err)
	return New(db, clk)
}

func TestAccountStore(t *testing.T) {
	suite.Run(t, &storagetest.AccountSuite{
		NewStore: func(clk *mocks.MockClock) storage.AccountStore {
			return openTestStorage(t, clk)
		},
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStorage(t, mocks.NewMockClock(storagetest.Epoch))
	defer s.Close()

	require.NoError(t, Migrate(context.Background(), s.db.DB, DriverSQLite))
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpenWithoutMigrationHasNoSchema(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoMigrate = false

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	s := New(db, mocks.NewMockClock(storagetest.Epoch))
	defer s.Close()

	_, err = s.FindByEmail(context.Background(), "a@b.com")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Driver: "oracle", DSN: "x"}.Validate())
	assert.Error(t, Config{Driver: DriverPostgres}.Validate())
}

func TestMySQLDSNSettings(t *testing.T) {
	driver, dsn, err := driverDSN(Config{Driver: DriverMySQL, DSN: "user:pw@tcp(db:3306)/credauth"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", driver)

	mc, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, mc.ParseTime)
	assert.True(t, mc.ClientFoundRows)
	assert.Equal(t, "utf8mb4_unicode_ci", mc.Collation)
	// ParseDSN keeps charset out of Params
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Equal(t, "credauth", mc.DBName)
}

func TestPostgresDriverName(t *testing.T) {
	driver, dsn, err := driverDSN(Config{Driver: DriverPostgres, DSN: "postgres://localhost/credauth"})
	require.NoError(t, err)
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, "postgres://localhost/credauth", dsn)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isUniqueViolation(&mysql.MySQLError{Number: 1045}))

	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.NotNullViolation}))

	assert.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
