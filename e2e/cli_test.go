package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/credauth/internal/api"
	"github.com/mcoot/credauth/internal/factory"
)

const (
	testEmail    = "maria@example.com"
	testCPF      = "529.982.247-25"
	testPassword = "Correct-Horse-9"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(projectRoot, "bin", "credauth-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/credauth")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	// Create temp token file
	tokenFile := filepath.Join(t.TempDir(), "token")

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  tokenFile,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = cliEnv()
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runWithStdin(stdin string, args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	cmd.Env = cliEnv()
	cmd.Stdin = strings.NewReader(stdin)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// cliEnv drops CREDAUTH_* variables from the developer's shell
func cliEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CREDAUTH_") {
			env = append(env, kv)
		}
	}
	return env
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// testServer manages a real HTTP server for e2e tests
type testServer struct {
	app      *factory.App
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	// Create application
	app, err := factory.New(context.Background(), factory.Config{
		Logger:     logger,
		Pepper:     factory.TestPepper,
		HashParams: factory.TestHashParams(),
	})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Controller:  app.AuthController,
		Sessions:    app.SessionManager,
		Gatherer:    app.Registry,
		HealthCheck: app.HealthCheck,
	})

	// Port 0 binds a free port
	serverCfg := api.DefaultServerConfig()
	serverCfg.Host = "127.0.0.1"
	serverCfg.Port = 0
	serverCfg.ShutdownTimeout = 5 * time.Second
	server := api.NewServer(router, serverCfg, logger)
	require.NoError(t, server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(ctx); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	// Wait for server to be ready
	serverURL := "http://" + server.Addr()
	waitForServer(t, serverURL+"/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			cancel()
			<-done
			_ = app.Close()
		},
	}
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type payloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Field   string `json:"field"`
}

type loginResponse struct {
	payloadResponse
	Token string `json:"token"`
}

type meResponse struct {
	Success bool `json:"success"`
	Account struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Email      string `json:"email"`
		Identifier string `json:"identifier"`
		Status     string `json:"status"`
	} `json:"account"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func register(t *testing.T, cli *cliRunner) {
	t.Helper()

	output, err := cli.run("register",
		"--name", "Maria Silva",
		"--nickname", "maria",
		"--cpf", testCPF,
		"--email", testEmail,
		"--password", testPassword,
	)
	require.NoError(t, err, "output: %s", output)

	var resp payloadResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "registration successful", resp.Message)
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	var resp healthResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_AccountFlow(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)
	register(t, cli)

	// Login saves the token file
	output, err := cli.run("login", "--email", testEmail, "--password", testPassword)
	require.NoError(t, err, "output: %s", output)

	var login loginResponse
	require.NoError(t, json.Unmarshal([]byte(output), &login))
	assert.True(t, login.Success)
	assert.Equal(t, "login successful", login.Message)
	require.NotEmpty(t, login.Token)

	saved, err := os.ReadFile(cli.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, login.Token, string(saved))

	// Me uses the saved token
	output, err = cli.run("me")
	require.NoError(t, err, "output: %s", output)

	var me meResponse
	require.NoError(t, json.Unmarshal([]byte(output), &me))
	assert.True(t, me.Success)
	assert.Equal(t, "Maria Silva", me.Account.Name)
	assert.Equal(t, testEmail, me.Account.Email)
	assert.Equal(t, "52998224725", me.Account.Identifier)
	assert.Equal(t, "active", me.Account.Status)

	// Logout ends the session and removes the token file
	output, err = cli.run("logout")
	require.NoError(t, err, "output: %s", output)
	_, err = os.Stat(cli.tokenFile)
	assert.True(t, os.IsNotExist(err))

	_, err = ts.app.SessionManager.Load(context.Background(), login.Token)
	assert.Error(t, err)

	output, err = cli.run("me")
	require.Error(t, err)
	assert.Contains(t, output, "not authenticated")
}

func TestCLI_LoginWithPasswordFromStdin(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)
	register(t, cli)

	output, err := cli.runWithStdin(testPassword+"\n", "login", "--email", testEmail, "--password-stdin")
	require.NoError(t, err, "output: %s", output)

	var login loginResponse
	require.NoError(t, json.Unmarshal([]byte(output), &login))
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)
}

func TestCLI_WrongPassword(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)
	register(t, cli)

	output, err := cli.run("login", "--email", testEmail, "--password", "Wrong-Horse-9")
	require.Error(t, err)
	assert.Contains(t, output, "invalid credentials")

	_, statErr := os.Stat(cli.tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCLI_DuplicateRegistration(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)
	register(t, cli)

	output, err := cli.run("register",
		"--name", "Maria Souza",
		"--nickname", "msouza",
		"--cpf", testCPF,
		"--email", "other@example.com",
		"--password", testPassword,
	)
	require.Error(t, err)
	assert.Contains(t, output, "email or identifier already registered")
}

func TestCLI_InvalidIdentifier(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("register",
		"--name", "Maria Silva",
		"--nickname", "maria",
		"--cpf", "123.456.789-00",
		"--email", testEmail,
		"--password", testPassword,
	)
	require.Error(t, err)
	assert.Contains(t, output, "field: identifier")
}

func TestCLI_LogoutWithoutToken(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("logout")
	require.Error(t, err)
	assert.Contains(t, output, "not logged in")
}
