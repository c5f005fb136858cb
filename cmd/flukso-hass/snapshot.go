package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nlowe/flukso-hass/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the entities exposed by the last completed discovery",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Snapshot.Path == "" {
			return errors.New("snapshot.path is not configured")
		}

		store, err := snapshot.Open(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		snap, err := store.Load()
		if err != nil {
			return fmt.Errorf("load %s: %w", cfg.Snapshot.Path, err)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()

		return enc.Encode(snap)
	},
}
