package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcoot/credauth/internal/dependencies/clock"
	"github.com/mcoot/credauth/internal/dependencies/random"
	"github.com/mcoot/credauth/internal/metrics"
	"github.com/mcoot/credauth/internal/services/auth"
	"github.com/mcoot/credauth/internal/services/password"
	"github.com/mcoot/credauth/internal/services/registration"
	"github.com/mcoot/credauth/internal/services/session"
	"github.com/mcoot/credauth/internal/storage"
	"github.com/mcoot/credauth/internal/storage/memory"
	redisstorage "github.com/mcoot/credauth/internal/storage/redis"
	"github.com/mcoot/credauth/internal/storage/sqldb"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQL    = "sql"
)

// App contains all wired application components
type App struct {
	// Storage
	Accounts storage.AccountStore
	Sessions storage.SessionStore

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// Services
	Hasher         *password.Hasher
	HashPool       *password.Pool
	Validator      *registration.Validator
	SessionManager *session.Manager
	AuthController *auth.Controller

	closers []io.Closer
	pingers []pinger
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger

	// AccountStorage selects the account backend ("memory", "redis" or "sql")
	// If empty, defaults to "memory"
	AccountStorage string
	// SessionStorage selects the session backend ("memory" or "redis")
	// If empty, defaults to "memory"
	SessionStorage string
	// RedisConfig holds Redis connection settings (required if either backend is "redis")
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required if AccountStorage is "sql")
	SQLConfig *sqldb.Config

	// Pepper is appended to every password before hashing
	Pepper string
	// HashParams are the argon2id costs; zero value selects password.DefaultParams()
	HashParams password.Params
	// PoolSize bounds concurrent hashes; zero selects password.DefaultPoolSize()
	PoolSize int
	// SessionConfig; zero value selects session.DefaultConfig()
	SessionConfig session.Config
	// Policy is the password strength policy; nil selects registration.DefaultPolicy()
	Policy *registration.Policy
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	params := cfg.HashParams
	if params == (password.Params{}) {
		params = password.DefaultParams()
	}
	hasher, err := password.NewHasher(cfg.Pepper, params)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	stores, err := openStorage(ctx, cfg, clk)
	if err != nil {
		return nil, err
	}

	app := newWithDependencies(stores.accounts, stores.sessions, clk, rnd, hasher, cfg, logger)
	app.closers = stores.closers
	app.pingers = stores.pingers

	logger.Info("application wired",
		slog.String("account_storage", orDefault(cfg.AccountStorage, StorageTypeMemory)),
		slog.String("session_storage", orDefault(cfg.SessionStorage, StorageTypeMemory)),
		slog.Any("hasher", hasher),
		slog.Int("hash_pool_size", app.HashPool.Size()),
	)
	return app, nil
}

type storageSet struct {
	accounts storage.AccountStore
	sessions storage.SessionStore
	closers  []io.Closer
	pingers  []pinger
}

// openStorage builds the selected backends. A backend used for both accounts
// and sessions is opened once.
func openStorage(ctx context.Context, cfg Config, clk clock.Clock) (*storageSet, error) {
	set := &storageSet{}
	var mem *memory.Storage
	var rds *redisstorage.Storage

	memoryStore := func() *memory.Storage {
		if mem == nil {
			mem = memory.New(clk)
			set.closers = append(set.closers, mem)
		}
		return mem
	}
	redisStore := func() (*redisstorage.Storage, error) {
		if rds != nil {
			return rds, nil
		}
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when a storage type is redis")
		}
		s, err := redisstorage.New(*cfg.RedisConfig, clk)
		if err != nil {
			return nil, err
		}
		rds = s
		set.closers = append(set.closers, rds)
		set.pingers = append(set.pingers, rds)
		return rds, nil
	}

	switch orDefault(cfg.AccountStorage, StorageTypeMemory) {
	case StorageTypeMemory:
		set.accounts = memoryStore()
	case StorageTypeRedis:
		s, err := redisStore()
		if err != nil {
			return nil, err
		}
		set.accounts = s
	case StorageTypeSQL:
		if cfg.SQLConfig == nil {
			return nil, errors.New("SQLConfig required when AccountStorage is sql")
		}
		db, err := sqldb.Open(ctx, *cfg.SQLConfig)
		if err != nil {
			return nil, err
		}
		s := sqldb.New(db, clk)
		set.accounts = s
		set.closers = append(set.closers, s)
		set.pingers = append(set.pingers, s)
	default:
		return nil, fmt.Errorf("invalid AccountStorage %q: must be 'memory', 'redis' or 'sql'", cfg.AccountStorage)
	}

	switch orDefault(cfg.SessionStorage, StorageTypeMemory) {
	case StorageTypeMemory:
		set.sessions = memoryStore()
	case StorageTypeRedis:
		s, err := redisStore()
		if err != nil {
			_ = closeAll(set.closers)
			return nil, err
		}
		set.sessions = s
	default:
		_ = closeAll(set.closers)
		return nil, fmt.Errorf("invalid SessionStorage %q: must be 'memory' or 'redis'", cfg.SessionStorage)
	}

	return set, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	accounts storage.AccountStore,
	sessions storage.SessionStore,
	clk clock.Clock,
	rnd random.Random,
	hasher *password.Hasher,
	cfg Config,
	logger *slog.Logger,
) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sessionCfg := cfg.SessionConfig
	if sessionCfg.TTL == 0 {
		sessionCfg = session.DefaultConfig()
	}
	policy := registration.DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	// Create services
	pool := password.NewPool(hasher, cfg.PoolSize, m)
	validator := registration.NewValidator(policy)
	sessionManager := session.NewManager(sessions, clk, rnd, sessionCfg, logger, m)
	authController := auth.NewController(accounts, validator, pool, sessionManager, hasher.DummyHash(), logger, m)

	return &App{
		Accounts:       accounts,
		Sessions:       sessions,
		Clock:          clk,
		Random:         rnd,
		Registry:       reg,
		Metrics:        m,
		Hasher:         hasher,
		HashPool:       pool,
		Validator:      validator,
		SessionManager: sessionManager,
		AuthController: authController,
	}
}

// HealthCheck pings every networked backend
func (a *App) HealthCheck(ctx context.Context) error {
	for _, p := range a.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every backend the App opened
func (a *App) Close() error {
	return closeAll(a.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
