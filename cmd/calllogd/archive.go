package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/gocrud/calllog/pebblestore"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <destination>",
		Short: "Print archived call log records as JSON lines",
		Long:  "Reads the local pebble archive. The daemon holds the archive lock while running, so stop it first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")
			if dataDir == "" {
				return errors.New("--data-dir is required")
			}

			store, err := pebblestore.Open(pebblestore.Options{DataDir: dataDir, Fsync: pebblestore.FsyncModeNever})
			if err != nil {
				return err
			}
			defer store.Close()

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			records, err := store.Scan(args[0], from, limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range records {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "pebble archive directory")
	cmd.Flags().Duration("since", 0, "only records newer than this, 0 reads all")
	cmd.Flags().Int("limit", 100, "maximum records, 0 reads all")
	return cmd
}
