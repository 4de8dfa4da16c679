package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pkt.systems/shellpane/internal/complete"
)

func newCompleteCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "complete FILE LINE COLUMN",
		Short: "Print word completions for a position in a file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid line %q", args[1])
			}
			column, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid column %q", args[2])
			}
			candidates, err := complete.NewWords(limit).Complete(cmd.Context(), args[0], line, column)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, candidate := range candidates {
				if _, err := fmt.Fprintln(out, candidate); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of candidates (0 for all)")
	return cmd
}
