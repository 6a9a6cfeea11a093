package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pocketledger/syncengine/internal/models"
)

func newSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the resulting state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			syncErr := e.sync.SyncNow(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), e.sync.GetState()); err != nil {
				return err
			}
			return syncErr
		},
	}
}

func newClaimCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "claim <user-id>",
		Short: "Assign rows created while signed out to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			claimed, err := e.claims.ClaimAnonymousData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models.ClaimResponse{Claimed: claimed})
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the device id and sync watermark",
		Long: `Clears the persisted device id and last-synced watermark. The next
sync re-registers the device and pulls everything from the backend.
Local rows are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.sync.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sync state cleared")
			return nil
		},
	}
}

// statusOutput is what `syncd status` prints
type statusOutput struct {
	Platform     models.Platform `json:"platform"`
	DeviceID     *string         `json:"deviceId"`
	LastSyncedAt *string         `json:"lastSyncedAt"`
	Pending      map[string]int  `json:"pending"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show persisted sync identifiers and pending row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			out := statusOutput{Platform: e.platform, Pending: make(map[string]int)}
			if out.DeviceID, err = e.store.DeviceID(ctx); err != nil {
				return err
			}
			if out.LastSyncedAt, err = e.store.LastSyncedAt(ctx); err != nil {
				return err
			}
			for _, table := range models.SyncOrder {
				pending, err := e.records.PendingRecords(ctx, table)
				if err != nil {
					return err
				}
				out.Pending[string(table)] = len(pending)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
