// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/therapyflow/internal/config"
	"github.com/ManuGH/therapyflow/internal/persistence/sqlite"
	"github.com/spf13/cobra"
)

func newVerifyDBCmd() *cobra.Command {
	var path, mode string
	cmd := &cobra.Command{
		Use:   "verify-db",
		Short: "Check integrity of the SQLite session database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != "quick" && mode != "full" {
				return fmt.Errorf("invalid mode %q (want quick or full)", mode)
			}
			if path == "" {
				dataDir := config.ParseString(config.EnvPrefix+"DATA_DIR", "data")
				path = filepath.Join(dataDir, "sessions.sqlite")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("database not found: %w", err)
			}

			problems, err := sqlite.VerifyIntegrity(path, mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				_, err = fmt.Fprintf(out, "ok: %s (%s check)\n", path, mode)
				return err
			}
			for _, p := range problems {
				_, _ = fmt.Fprintln(out, p)
			}
			return fmt.Errorf("%s failed %s check with %d issue(s)", path, mode, len(problems))
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "SQLite database file (default $THERAPYFLOW_DATA_DIR/sessions.sqlite)")
	cmd.Flags().StringVar(&mode, "mode", "quick", "verification mode: quick or full")
	return cmd
}
