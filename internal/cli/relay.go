package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Realtime relay commands",
	}

	cmd.AddCommand(newRelayUpdateCmd())
	cmd.AddCommand(newRelayPlayersCmd())
	cmd.AddCommand(newRelayCleanupCmd())
	cmd.AddCommand(newRelayStatsCmd())
	cmd.AddCommand(newRelayListenCmd())

	return cmd
}

func newRelayUpdateCmd() *cobra.Command {
	var (
		address string
		x, y    float64
		health  float64
		score   int64
		coins   int64
	)

	cmd := &cobra.Command{
		Use:   "update <code>",
		Short: "Push the caller's telemetry",
		Long: `Push the caller's telemetry. Only the flags that are given are sent;
every other field keeps its previous value on the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"roomCode": args[0],
				"address":  address,
			}
			flags := cmd.Flags()
			if flags.Changed("x") {
				req["x"] = x
			}
			if flags.Changed("y") {
				req["y"] = y
			}
			if flags.Changed("health") {
				req["health"] = health
			}
			if flags.Changed("score") {
				req["score"] = score
			}
			if flags.Changed("coins") {
				req["coins"] = coins
			}

			var result UpdatePlayerResult
			if err := client.Post("/api/v1/relay/update-player", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Player address (required)")
	cmd.Flags().Float64Var(&x, "x", 0, "X position")
	cmd.Flags().Float64Var(&y, "y", 0, "Y position")
	cmd.Flags().Float64Var(&health, "health", 0, "Health")
	cmd.Flags().Int64Var(&score, "score", 0, "Score")
	cmd.Flags().Int64Var(&coins, "coins", 0, "Coins")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func newRelayPlayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players <code> <address>",
		Short: "Poll every other participant's telemetry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/relay/players/%s/%s", url.PathEscape(args[0]), url.PathEscape(args[1]))

			var result Players
			if err := client.Get(path, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRelayCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Evict stale telemetry now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result CleanupResult
			if err := client.Post("/api/v1/relay/cleanup", nil, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRelayStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show relay occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result RelayStats
			if err := client.Get("/api/v1/relay/stats", &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRelayListenCmd() *cobra.Command {
	var (
		address    string
		isHost     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "listen <code>",
		Short: "Join a room's push channel and stream its events",
		Long: `Connect to the relay websocket, join the room and print events in real-time.

Events include:
  - room-status: Sent once on join with the membership count
  - player-joined: Another session joined the room
  - player-left: A session disconnected
  - player-movement: Another participant's relayed input
  - room-updated: The room changed through the HTTP API

Press Ctrl+C to disconnect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listen(args[0], address, isHost, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Address to join as (required)")
	cmd.Flags().BoolVar(&isHost, "host", false, "Join as the room host")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

// RelayEvent is one received push-channel event
type RelayEvent struct {
	Time  time.Time       `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func listen(roomCode, address string, isHost, jsonOutput bool) error {
	wsURL, err := cfg.WebsocketURL("/api/v1/relay/ws")
	if err != nil {
		return err
	}

	// Set up cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	join, err := json.Marshal(map[string]any{
		"event": "join-room",
		"data": map[string]any{
			"roomCode": roomCode,
			"address":  address,
			"isHost":   isHost,
		},
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Connected to room %s as %s\n", roomCode, address)
	}

	// Closing the connection unblocks the read loop
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if !jsonOutput {
					fmt.Println("\nDisconnected")
				}
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return fmt.Errorf("stream error: %w", err)
		}
		printEvent(env, jsonOutput)
	}
}

func printEvent(env envelope, jsonOutput bool) {
	now := time.Now()

	if jsonOutput {
		data, _ := json.Marshal(RelayEvent{Time: now, Event: env.Event, Data: env.Data})
		fmt.Println(string(data))
		return
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	// Truncate data if it's too long for display
	displayData := string(env.Data)
	if len(displayData) > 100 {
		displayData = displayData[:100] + "..."
	}
	displayData = strings.ReplaceAll(displayData, "\n", " ")
	fmt.Printf("[%s] %s: %s\n", timestamp, env.Event, displayData)
}
