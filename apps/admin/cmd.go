package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errNotConfirmed = errors.New("aborted: not confirmed")
	errNeedsYes     = errors.New("stdin is not a terminal: re-run with --yes to confirm")
)

type commandLine struct {
	db  *sqlx.DB
	svc *completion.Service
	agg *progress.Aggregator
	in  io.Reader
	out io.Writer

	yes bool
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maendeleo administration commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&cli.yes, "yes", "y", false, "do not prompt for confirmation")

	root.AddCommand(
		cli.migrateCmd(),
		cli.recalculateCmd(),
		cli.invalidateCmd(),
		cli.quizCompletionsCmd(),
		cli.overrideCmd(),
	)
	return root
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	root.SetIn(cli.in)
	root.SetOut(cli.out)
	root.SetErr(cli.out)
	return root.ExecuteContext(ctx)
}

// confirm asks the operator before a command writes progress.
func (cli *commandLine) confirm(prompt string) error {
	if cli.yes {
		return nil
	}
	if !isTerminalFunc(int(os.Stdin.Fd())) {
		return errNeedsYes
	}

	_, _ = fmt.Fprintf(cli.out, "%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading confirmation")
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return errNotConfirmed
}

func (cli *commandLine) printJSON(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
