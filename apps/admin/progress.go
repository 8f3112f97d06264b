package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) recalculateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalculate",
		Short: "Recompute the progress of every tracked (user, course) without lowering any stored percentage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.confirm("Recalculate the progress of every learner?"); err != nil {
				return err
			}
			res, err := cli.agg.RecalculateAll(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "recalculated: %d succeeded, %d failed\n", len(res.Succeeded), res.FailureCount)
			if res.FailureCount > 0 {
				return cli.printJSON(res.Errors)
			}
			return nil
		},
	}
}

func (cli *commandLine) invalidateCmd() *cobra.Command {
	var courseID string
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached course structure (every course unless --course is given)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ids []string
			if courseID != "" {
				ids = append(ids, courseID)
			}
			if err := cli.agg.Invalidate(cmd.Context(), ids...); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.out, "course structure cache invalidated")
			return nil
		},
	}
	cmd.Flags().StringVar(&courseID, "course", "", "course id")
	return cmd
}
