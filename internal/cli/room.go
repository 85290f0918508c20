package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newRoomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Room lifecycle commands",
	}

	cmd.AddCommand(newRoomCreateCmd())
	cmd.AddCommand(newRoomGetCmd())
	cmd.AddCommand(newRoomJoinCmd())
	cmd.AddCommand(newRoomReadyCmd())
	cmd.AddCommand(newRoomTransitionCmd("start", "Move a room to playing"))
	cmd.AddCommand(newRoomTransitionCmd("finish", "Move a room to finished"))
	cmd.AddCommand(newRoomWatchCmd())

	return cmd
}

func roomPath(code, action string) string {
	path := "/api/v1/rooms/" + url.PathEscape(code)
	if action != "" {
		path += "/" + action
	}
	return path
}

// shipFlags are the optional loadout flags of create and join
type shipFlags struct {
	rarity string
	name   string
	class  string
	image  string
}

func (s *shipFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.rarity, "ship-rarity", "", "Ship rarity")
	cmd.Flags().StringVar(&s.name, "ship-name", "", "Ship name")
	cmd.Flags().StringVar(&s.class, "ship-class", "", "Ship class")
	cmd.Flags().StringVar(&s.image, "ship-image", "", "Ship image path")
}

func (s *shipFlags) apply(req map[string]any) {
	for key, val := range map[string]string{
		"shipRarity": s.rarity,
		"shipName":   s.name,
		"shipClass":  s.class,
		"shipImage":  s.image,
	} {
		if val != "" {
			req[key] = val
		}
	}
}

func newRoomCreateCmd() *cobra.Command {
	var (
		mode    string
		address string
		ship    shipFlags
	)

	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Create a room, or re-enter an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"roomCode": args[0],
				"mode":     mode,
				"address":  address,
			}
			ship.apply(req)

			var result Room
			if err := client.Post("/api/v1/rooms", req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "multiplayer", "Room mode: solo, versus, multiplayer")
	cmd.Flags().StringVar(&address, "address", "", "Host address (required)")
	_ = cmd.MarkFlagRequired("address")
	ship.register(cmd)

	return cmd
}

func newRoomGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code>",
		Short: "Get room details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Room

			if err := client.Get(roomPath(args[0], ""), &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}
}

func newRoomJoinCmd() *cobra.Command {
	var (
		address string
		ship    shipFlags
	)

	cmd := &cobra.Command{
		Use:   "join <code>",
		Short: "Join a multiplayer room as guest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"address": address}
			ship.apply(req)

			var result Room
			if err := client.Post(roomPath(args[0], "join"), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Guest address (required)")
	_ = cmd.MarkFlagRequired("address")
	ship.register(cmd)

	return cmd
}

func newRoomReadyCmd() *cobra.Command {
	var (
		address  string
		notReady bool
	)

	cmd := &cobra.Command{
		Use:   "ready <code>",
		Short: "Set the caller's ready flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{"address": address, "ready": !notReady}

			var result Room
			if err := client.Post(roomPath(args[0], "ready"), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Host or guest address (required)")
	cmd.Flags().BoolVar(&notReady, "not-ready", false, "Clear the flag instead of setting it")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func newRoomTransitionCmd(action, short string) *cobra.Command {
	var (
		address string
		mode    string
	)

	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <code>", action),
		Short: short,
		Long: short + `.

Repeating the call is safe. When the room does not exist and --address is
given, it is created directly in the target status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{}
			if address != "" {
				req["address"] = address
			}
			if mode != "" {
				req["mode"] = mode
			}

			var result Transition
			if err := client.Post(roomPath(args[0], action), req, &result); err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Host address used if the room has to be created")
	cmd.Flags().StringVar(&mode, "mode", "", "Mode used if the room has to be created")

	return cmd
}
