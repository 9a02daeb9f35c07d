package sqldb

import "fmt"

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config selects the SQL driver and connection string
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// AutoMigrate applies pending migrations when the store is opened
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DefaultConfig returns an in-memory SQLite database
func DefaultConfig() Config {
	return Config{
		Driver:      DriverSQLite,
		DSN:         ":memory:",
		AutoMigrate: true,
	}
}

// Validate checks the driver is supported and a DSN is present
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %q", c.Driver)
	}
	return nil
}
