package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/maendeleo/core/completion"
)

func (cli *commandLine) quizCompletionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz-completions",
		Short: "Find passed quizzes missing from unit progress",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "analyze",
			Short: "List the passed quizzes missing from unit progress, without writing anything",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				report, err := cli.svc.AnalyzeMissingQuizCompletions(cmd.Context())
				if err != nil {
					return err
				}
				return cli.printReport(report)
			},
		},
		&cobra.Command{
			Use:   "fix",
			Short: "Record the missing quiz completions and complete the units whose requirements now hold",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cli.confirm("Backfill missing quiz completions?"); err != nil {
					return err
				}
				report, err := cli.svc.FixMissingQuizCompletions(cmd.Context())
				if err != nil {
					return err
				}
				return cli.printReport(report)
			},
		},
	)
	return cmd
}

func (cli *commandLine) printReport(report completion.RepairReport) error {
	_, _ = fmt.Fprintf(cli.out, "scanned: %d, quiz flags raised: %d, units completed: %d, failures: %d\n",
		report.Scanned, report.QuizFlagsRaised, report.UnitsCompleted, report.FailureCount)
	for _, item := range report.Items {
		line := fmt.Sprintf("  %s (%s)", item.Key, item.Strategy)
		switch {
		case item.Error != "":
			line += " error: " + item.Error
		case item.Completed:
			line += " completed"
		case item.WillComplete:
			line += " will complete"
		}
		_, _ = fmt.Fprintln(cli.out, line)
	}
	return nil
}

func (cli *commandLine) overrideCmd() *cobra.Command {
	var userID, unitID string
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Mark a unit complete for a user without evaluating its requirements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.confirm(fmt.Sprintf("Complete unit %s for user %s?", unitID, userID)); err != nil {
				return err
			}
			res, err := cli.svc.AdminOverride(cmd.Context(), userID, unitID)
			if err != nil {
				return err
			}
			if !res.Success {
				return errors.Wrapf(res.Err, "completing %s failed after %d attempt(s)", res.Key, res.Attempts)
			}
			_, _ = fmt.Fprintf(cli.out, "%s completed (%s)\n", res.Key, res.Method)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&unitID, "unit", "", "unit id (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}
