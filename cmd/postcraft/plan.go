package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ent0n29/postcraft/internal/intent"
)

// newPlanCmd prints the keyword plan for an instruction without calling
// any model.
func newPlanCmd() *cobra.Command {
	var hints intent.Hints
	cmd := &cobra.Command{
		Use:   "plan <instruction>",
		Short: "Show which capabilities an instruction would run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				return errors.New("instruction must not be empty")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(intent.Heuristic(instruction, hints))
		},
	}
	cmd.Flags().StringVar(&hints.Platform, "platform", "", "target platform hint")
	cmd.Flags().BoolVar(&hints.EditImage, "edit-image", false, "force the image capability")
	return cmd
}
