package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/arcaderooms/internal/api"
	"github.com/mcoot/arcaderooms/internal/factory"
)

// cliRunner manages CLI binary execution
type cliRunner struct {
	binaryPath string
	serverURL  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	// Find project root (where go.mod is)
	projectRoot := findProjectRoot(t)

	// Build the CLI binary
	binaryPath := filepath.Join(t.TempDir(), "arcadectl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/arcadectl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
	}
}

func (r *cliRunner) run(args ...string) (string, error) {
	fullArgs := append([]string{
		"--server", r.serverURL,
		"--output", "json",
	}, args...)

	cmd := exec.Command(r.binaryPath, fullArgs...)
	output, err := cmd.Output()
	return string(output), err
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
	app      *factory.TestApp
	addr     string
	shutdown func()
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := factory.NewTestApp()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Coordinator: app.Coordinator,
		Relay:       app.Relay,
		Hub:         app.Hub,
		Recorder:    app.Recorder,
		Store:       app.Storage,
		Events:      app.Events,
	})

	server := &http.Server{Handler: router}

	go func() {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := "http://" + listener.Addr().String()
	waitForServer(t, serverURL+"/api/v1/health")

	return &testServer{
		app:  app,
		addr: serverURL,
		shutdown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
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
type roomResponse struct {
	RoomCode      string  `json:"roomCode"`
	Mode          string  `json:"mode"`
	HostAddress   string  `json:"hostAddress"`
	GuestAddress  *string `json:"guestAddress"`
	HostReady     bool    `json:"hostReady"`
	GuestReady    bool    `json:"guestReady"`
	Status        string  `json:"status"`
	AlreadyJoined bool    `json:"alreadyJoined"`
}

type transitionResponse struct {
	Success bool          `json:"success"`
	Room    *roomResponse `json:"room"`
}

type matchResponse struct {
	ID       string  `json:"id"`
	RoomCode *string `json:"roomCode"`
	Address  string  `json:"address"`
	Score    int64   `json:"score"`
	Mode     string  `json:"mode"`
}

type saveMatchResponse struct {
	Match     matchResponse `json:"match"`
	Duplicate bool          `json:"duplicate"`
}

type matchListResponse struct {
	Matches []matchResponse `json:"matches"`
}

type playersResponse struct {
	Players []struct {
		Address string  `json:"address"`
		X       float64 `json:"x"`
		Score   int64   `json:"score"`
	} `json:"players"`
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func decodeOutput[T any](t *testing.T, output string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(output), &v), "output: %s", output)
	return v
}

// Tests

func TestCLI_HealthCheck(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("health")
	require.NoError(t, err, "output: %s", output)

	resp := decodeOutput[healthResponse](t, output)
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_RoomLifecycle(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("room", "create", "E2E001", "--address", "0xhost", "--mode", "multiplayer",
		"--ship-name", "Falcon", "--ship-rarity", "rare")
	require.NoError(t, err, "output: %s", output)
	room := decodeOutput[roomResponse](t, output)
	assert.Equal(t, "E2E001", room.RoomCode)
	assert.Equal(t, "multiplayer", room.Mode)
	assert.Equal(t, "waiting", room.Status)
	assert.Nil(t, room.GuestAddress)

	output, err = cli.run("room", "join", "e2e001", "--address", "0xguest")
	require.NoError(t, err, "output: %s", output)
	room = decodeOutput[roomResponse](t, output)
	require.NotNil(t, room.GuestAddress)
	assert.Equal(t, "0xguest", *room.GuestAddress)
	assert.False(t, room.AlreadyJoined)

	output, err = cli.run("room", "join", "E2E001", "--address", "0xguest")
	require.NoError(t, err, "output: %s", output)
	room = decodeOutput[roomResponse](t, output)
	assert.True(t, room.AlreadyJoined)

	for _, addr := range []string{"0xhost", "0xguest"} {
		output, err = cli.run("room", "ready", "E2E001", "--address", addr)
		require.NoError(t, err, "output: %s", output)
	}
	room = decodeOutput[roomResponse](t, output)
	assert.True(t, room.HostReady)
	assert.True(t, room.GuestReady)

	output, err = cli.run("room", "start", "E2E001")
	require.NoError(t, err, "output: %s", output)
	tr := decodeOutput[transitionResponse](t, output)
	assert.True(t, tr.Success)
	require.NotNil(t, tr.Room)
	assert.Equal(t, "playing", tr.Room.Status)

	output, err = cli.run("room", "finish", "E2E001")
	require.NoError(t, err, "output: %s", output)
	tr = decodeOutput[transitionResponse](t, output)
	require.NotNil(t, tr.Room)
	assert.Equal(t, "finished", tr.Room.Status)

	output, err = cli.run("room", "get", "E2E001")
	require.NoError(t, err, "output: %s", output)
	room = decodeOutput[roomResponse](t, output)
	assert.Equal(t, "finished", room.Status)
}

func TestCLI_RoomErrors(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	_, err := cli.run("room", "get", "NOPE01")
	assert.Error(t, err)

	_, err = cli.run("room", "create", "E2E002")
	assert.Error(t, err, "address is required")

	output, err := cli.run("room", "create", "E2E002", "--address", "0xhost")
	require.NoError(t, err, "output: %s", output)
	output, err = cli.run("room", "join", "E2E002", "--address", "0xguest")
	require.NoError(t, err, "output: %s", output)

	_, err = cli.run("room", "join", "E2E002", "--address", "0xthird")
	assert.Error(t, err, "room is full")

	output, err = cli.run("room", "create", "E2E005", "--address", "0xhost", "--mode", "versus")
	require.NoError(t, err, "output: %s", output)
	_, err = cli.run("room", "join", "E2E005", "--address", "0xguest")
	assert.Error(t, err, "versus rooms cannot be joined")

	output, err = cli.run("room", "get", "E2E005")
	require.NoError(t, err, "output: %s", output)
	room := decodeOutput[roomResponse](t, output)
	assert.Nil(t, room.GuestAddress)
}

func TestCLI_RelayCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("relay", "update", "E2E003", "--address", "0xa", "--x", "12.5", "--score", "40")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("relay", "update", "E2E003", "--address", "0xb", "--x", "3")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("relay", "players", "E2E003", "0xb")
	require.NoError(t, err, "output: %s", output)
	players := decodeOutput[playersResponse](t, output)
	require.Len(t, players.Players, 1)
	assert.Equal(t, "0xa", players.Players[0].Address)
	assert.Equal(t, 12.5, players.Players[0].X)
	assert.Equal(t, int64(40), players.Players[0].Score)

	output, err = cli.run("relay", "cleanup")
	require.NoError(t, err, "output: %s", output)
}

func TestCLI_MatchCommands(t *testing.T) {
	ts := startTestServer(t)
	defer ts.shutdown()

	cli := newCLIRunner(t, ts.addr)

	output, err := cli.run("match", "save", "--room", "E2E004", "--address", "0xa", "--score", "900", "--coins", "7", "--mode", "versus")
	require.NoError(t, err, "output: %s", output)
	saved := decodeOutput[saveMatchResponse](t, output)
	assert.False(t, saved.Duplicate)
	assert.NotEmpty(t, saved.Match.ID)

	output, err = cli.run("match", "save", "--room", "E2E004", "--address", "0xa", "--score", "900", "--coins", "7", "--mode", "versus")
	require.NoError(t, err, "output: %s", output)
	dup := decodeOutput[saveMatchResponse](t, output)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, saved.Match.ID, dup.Match.ID)

	output, err = cli.run("match", "save", "--address", "0xa", "--score", "100")
	require.NoError(t, err, "output: %s", output)
	solo := decodeOutput[saveMatchResponse](t, output)
	assert.Nil(t, solo.Match.RoomCode)
	assert.Equal(t, "solo", solo.Match.Mode)

	output, err = cli.run("match", "list", "0xa")
	require.NoError(t, err, "output: %s", output)
	list := decodeOutput[matchListResponse](t, output)
	assert.Len(t, list.Matches, 2)

	output, err = cli.run("match", "list", "0xa", "--limit", "1")
	require.NoError(t, err, "output: %s", output)
	list = decodeOutput[matchListResponse](t, output)
	assert.Len(t, list.Matches, 1)
}
