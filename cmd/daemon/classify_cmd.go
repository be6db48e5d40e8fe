// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"strings"

	"github.com/ManuGH/therapyflow/internal/safety"
	"github.com/spf13/cobra"
)

type classifyOutput struct {
	safety.Assessment
	BotResponse string `json:"botResponse"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text...>",
		Short: "Screen a transcript and print the assessment as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			a := safety.Classify(text)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(classifyOutput{Assessment: a, BotResponse: safety.Reply(text, a)})
		},
	}
}
