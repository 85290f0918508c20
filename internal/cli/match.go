package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match result commands",
	}

	cmd.AddCommand(newMatchSaveCmd())
	cmd.AddCommand(newMatchListCmd())

	return cmd
}

func newMatchSaveCmd() *cobra.Command {
	var (
		roomCode string
		address  string
		score    int64
		coins    int64
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Submit a match result",
		Long: `Submit a match result.

Submitting the same room, address and score again within a few seconds
returns the original record flagged as a duplicate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"address": address,
				"score":   score,
				"coins":   coins,
				"mode":    mode,
			}
			if roomCode != "" {
				req["roomCode"] = roomCode
			}

			var result SaveMatchResult
			if err := client.Post("/api/v1/matches/save", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&roomCode, "room", "", "Room code (omit for matches played outside a room)")
	cmd.Flags().StringVar(&address, "address", "", "Player address (required)")
	cmd.Flags().Int64Var(&score, "score", 0, "Final score")
	cmd.Flags().Int64Var(&coins, "coins", 0, "Coins collected")
	cmd.Flags().StringVar(&mode, "mode", "solo", "Mode: solo, versus, multiplayer")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func newMatchListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list <address>",
		Short: "List an address's recent matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/matches/" + url.PathEscape(args[0])
			if limit > 0 {
				path += fmt.Sprintf("?limit=%d", limit)
			}

			var result MatchList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum matches to return (default: server default)")

	return cmd
}
