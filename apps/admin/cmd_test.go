package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
	"github.com/trezcool/maendeleo/tests"
)

const courseID = "course-1"

type fixture struct {
	cli  *commandLine
	db   *sqlx.DB
	out  *bytes.Buffer
	prog progress.Repository
}

func setup(t *testing.T, stdin string) *fixture {
	db := testutil.OpenDB(t)
	testutil.SeedCatalog(t, db,
		courseID,
		testutil.UnitSpec{ID: "u1", Content: "q"},
		testutil.UnitSpec{ID: "u2", Content: "vq"},
	)

	conf := testutil.Config()
	logger := new(testutil.Logger)
	compRepo := sqlxrepos.NewCompletionRepository(db)
	progRepo := sqlxrepos.NewProgressRepository(db)
	agg := progress.NewAggregator(progRepo, progress.NewMemoryCache(time.Minute), core.NopPublisher{}, logger, conf.Progress)
	writer := completion.NewWriter(compRepo, agg, new(testutil.Notifier), core.NopPublisher{}, logger, conf.Completion)
	queue := completion.NewPendingQueue(writer, logger, conf.Completion)
	t.Cleanup(agg.Wait)

	out := new(bytes.Buffer)
	return &fixture{
		cli: &commandLine{
			db:  db,
			svc: completion.NewService(compRepo, writer, queue, logger, conf.Completion),
			agg: agg,
			in:  strings.NewReader(stdin),
			out: out,
		},
		db:   db,
		out:  out,
		prog: progRepo,
	}
}

func (f *fixture) run(args ...string) error {
	f.out.Reset()
	return f.cli.run(context.Background(), args)
}

func asTerminal(t *testing.T, terminal bool) {
	prev := isTerminalFunc
	isTerminalFunc = func(int) bool { return terminal }
	t.Cleanup(func() { isTerminalFunc = prev })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t, "")

	prev := migrateFunc
	t.Cleanup(func() { migrateFunc = prev })
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErrStr: "requires at least 1 arg(s), only received 0"},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.run(tt.args...)
			if tt.wantErrStr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
				return
			}
			assert.NoError(t, err)
		})
	}
}

func Test_commandLine_migrateWithoutDatabase(t *testing.T) {
	f := setup(t, "")
	f.cli.db = nil

	err := f.run("migrate", "up")
	assert.EqualError(t, err, "migrations need a sql database: the in-memory engine has no schema")
}

func Test_commandLine_confirm(t *testing.T) {
	tests := []struct {
		name     string
		stdin    string
		terminal bool
		args     []string
		wantErr  error
	}{
		{name: "not a terminal", terminal: false, args: []string{"recalculate"}, wantErr: errNeedsYes},
		{name: "declined", stdin: "n\n", terminal: true, args: []string{"recalculate"}, wantErr: errNotConfirmed},
		{name: "empty answer", stdin: "", terminal: true, args: []string{"recalculate"}, wantErr: errNotConfirmed},
		{name: "accepted", stdin: "Yes\n", terminal: true, args: []string{"recalculate"}},
		{name: "--yes", terminal: false, args: []string{"recalculate", "--yes"}},
		{name: "-y", terminal: false, args: []string{"-y", "recalculate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.stdin)
			asTerminal(t, tt.terminal)

			err := f.run(tt.args...)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, f.out.String(), "recalculated: 0 succeeded, 0 failed")
		})
	}
}

func Test_commandLine_quizCompletions(t *testing.T) {
	f := setup(t, "")
	testutil.AddQuizAttempt(t, f.db, "user-1", "u1", true, time.Now().Add(-time.Hour))
	testutil.AddQuizAttempt(t, f.db, "user-1", "u2", true, time.Now().Add(-time.Hour))
	testutil.AddQuizAttempt(t, f.db, "user-2", "u1", false, time.Now().Add(-time.Hour))

	require.NoError(t, f.run("quiz-completions", "analyze"))
	assert.Contains(t, f.out.String(), "scanned: 2, quiz flags raised: 0, units completed: 0, failures: 0")
	assert.Contains(t, f.out.String(), "user-1/course-1/u1 (quiz_only) will complete")

	require.NoError(t, f.run("quiz-completions", "fix", "--yes"))
	assert.Contains(t, f.out.String(), "scanned: 2, quiz flags raised: 2, units completed: 1, failures: 0")
	assert.Contains(t, f.out.String(), "user-1/course-1/u1 (quiz_only) completed")
	assert.Contains(t, f.out.String(), "user-1/course-1/u2 (video_and_quiz)\n")

	require.NoError(t, f.run("quiz-completions", "analyze"))
	assert.Contains(t, f.out.String(), "scanned: 0")
}

func Test_commandLine_override(t *testing.T) {
	f := setup(t, "")

	err := f.run("override", "--yes", "--user", "user-1")
	assert.EqualError(t, err, `required flag(s) "unit" not set`)

	err = f.run("override", "--yes", "--user", "user-1", "--unit", "nope")
	assert.ErrorIs(t, err, completion.ErrUnitNotFound)

	require.NoError(t, f.run("override", "--yes", "--user", "user-1", "--unit", "u2"))
	assert.Equal(t, "user-1/course-1/u2 completed (admin_override)\n", f.out.String())

	f.cli.agg.Wait()
	cp, err := f.prog.GetCourseProgress(context.Background(), "user-1", courseID)
	require.NoError(t, err)
	assert.Equal(t, 50, cp.Percentage)

	require.NoError(t, f.run("recalculate", "--yes"))
	assert.Contains(t, f.out.String(), "recalculated: 1 succeeded, 0 failed")
}

func Test_commandLine_invalidate(t *testing.T) {
	f := setup(t, "")

	require.NoError(t, f.run("invalidate", "--course", courseID))
	assert.Equal(t, "course structure cache invalidated\n", f.out.String())
	require.NoError(t, f.run("invalidate"))
}
