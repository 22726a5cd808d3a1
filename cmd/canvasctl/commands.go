package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/zlnvch/pixelverse/client"
	"github.com/zlnvch/pixelverse/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCoord(xArg, yArg string) (int, int, error) {
	x, errX := strconv.Atoi(xArg)
	y, errY := strconv.Atoi(yArg)
	if errX != nil || errY != nil {
		return 0, 0, eris.Errorf("coordinates must be integers, got %q %q", xArg, yArg)
	}
	return x, y, nil
}

func newSnapshotCmd(s *settings) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print every painted pixel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			canvas := client.NewCanvas()
			painter := client.NewPainter(s.api(), canvas, nil, nil)
			if err := painter.Load(cmd.Context()); err != nil {
				return err
			}

			records := canvas.Records()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			for _, record := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%d,%d %s %s\n", record.X, record.Y, record.Color, walletLabel(record))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pixels\n", len(records))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func walletLabel(record models.PixelRecord) string {
	if record.Wallet() == "" {
		return "anonymous"
	}
	return record.Wallet()
}

func newPlaceCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "place <x> <y> <color>",
		Short:   "Paint one pixel",
		Example: "canvasctl place 10 20 '#ff0000' --wallet 0xabc",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}

			painter, err := s.painter(cmd.Context())
			if err != nil {
				return err
			}
			record, err := painter.Place(cmd.Context(), x, y, args[2])
			if err != nil {
				return err
			}

			status := painter.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "placed %s at %d,%d\n", record.Color, record.X, record.Y)
			if status.Unlimited {
				fmt.Fprintln(cmd.OutOrStdout(), "placements left: unlimited")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "placements left: %d\n", status.Remaining)
			}
			return nil
		},
	}
}

func newWatchCmd(s *settings) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow live canvas changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := s.api()
			canvas := client.NewCanvas()
			if err := client.NewPainter(api, canvas, nil, nil).Load(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d pixels\n", canvas.Len())

			canvas.OnChange(func(record models.PixelRecord, removed bool) {
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %d,%d\n", record.X, record.Y)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d,%d %s %s\n", record.X, record.Y, record.Color, walletLabel(record))
			})

			streamURL, err := client.StreamURL(api.BaseURL())
			if err != nil {
				return err
			}
			stream, err := client.DialStream(cmd.Context(), streamURL, origin)
			if err != nil {
				return err
			}
			defer stream.Close()

			log.Debug().Str("url", streamURL).Msg("Watching canvas")
			return stream.Run(cmd.Context(), canvas)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "Origin header for servers that restrict websocket origins")
	return cmd
}

func newLeaderboardCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard [pixels|colors|territory|timePlayed]",
		Short: "Print a leaderboard",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board := "pixels"
			if len(args) == 1 {
				board = args[0]
			}
			entries, err := s.api().Leaderboard(cmd.Context(), board)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s %d\n", entry.Rank, entry.WalletAddress, entry.Value)
			}
			return nil
		},
	}
}

func newQuotaCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the local placement allowance and what the server reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			painter, err := s.painter(cmd.Context())
			if err != nil {
				return err
			}
			report, err := s.api().Quota(cmd.Context(), s.wallet())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"local":  painter.Status(),
				"server": report,
			})
		},
	}
}

func newWalletCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "wallet <address>",
		Short: "Show a wallet's token balance and pixels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := s.api()
			owns, balance, err := api.OwnsToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pixels, err := api.PixelsByWallet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"ownsToken":    owns,
				"tokenBalance": balance,
				"count":        len(pixels),
				"pixels":       pixels,
			})
		},
	}
}

func newHistoryCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "history <x> <y>",
		Short: "Show the recent placements at one coordinate, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, y, err := parseCoord(args[0], args[1])
			if err != nil {
				return err
			}
			history, err := s.api().PixelHistory(cmd.Context(), x, y)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
}

func newClearWalletCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-wallet <address>",
		Short: "Queue removal of every pixel a wallet painted (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := s.v.GetString("admin_token")
			if token == "" {
				return eris.New("an admin token is required (--admin-token or PIXELVERSE_ADMIN_TOKEN)")
			}
			jobId, err := s.api().ClearWallet(cmd.Context(), token, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued job %s\n", jobId)
			return nil
		},
	}
	cmd.Flags().String("admin-token", "", "admin JWT")
	s.v.BindPFlag("admin_token", cmd.Flags().Lookup("admin-token"))
	return cmd
}
