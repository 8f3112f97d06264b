package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/maendeleo/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, status, version...)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) migrate(db *sqlx.DB, command string, args ...string) error {
	if db == nil {
		return errors.New("migrations need a sql database: the in-memory engine has no schema")
	}
	return migrateFunc(db, command, args...)
}
