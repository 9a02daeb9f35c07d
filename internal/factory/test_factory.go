package factory

import (
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/credauth/internal/dependencies/mocks"
	"github.com/mcoot/credauth/internal/services/password"
	"github.com/mcoot/credauth/internal/storage/memory"
)

// TestPepper is the pepper used by NewTestApp
const TestPepper = "test-pepper"

// TestHashParams are cheap argon2id parameters for tests
func TestHashParams() password.Params {
	return password.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}
}

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Store backs both accounts and sessions
	Store *memory.Storage

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies.
// Session IDs are taken from MockRandom, so tests must queue them.
func NewTestApp(logger *slog.Logger) *TestApp {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	mockClock := mocks.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	store := memory.New(mockClock)

	hasher, err := password.NewHasher(TestPepper, TestHashParams())
	if err != nil {
		panic("test hash params rejected: " + err.Error())
	}

	app := newWithDependencies(store, store, mockClock, mockRandom, hasher, Config{PoolSize: 2}, logger)
	app.closers = append(app.closers, store)

	return &TestApp{
		App:        app,
		Store:      store,
		MockClock:  mockClock,
		MockRandom: mockRandom,
	}
}
