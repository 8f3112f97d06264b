package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
	eventsvc "github.com/trezcool/maendeleo/services/events"
	logsvc "github.com/trezcool/maendeleo/services/logger"
	notifysvc "github.com/trezcool/maendeleo/services/notify"
	rediscache "github.com/trezcool/maendeleo/storage/cache/redis"
	"github.com/trezcool/maendeleo/storage/database"
	inmemdb "github.com/trezcool/maendeleo/storage/database/inmem"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	logger, err := logsvc.NewRollbarLogger(conf)
	errAndDie(err)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Sync()

	cli, cleanup, err := newCommandLine(conf, logger)
	errAndDie(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = cli.run(ctx, os.Args[1:])
	stop()
	cleanup()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		os.Exit(1)
	}
}

// newCommandLine builds the services the commands run against.
func newCommandLine(conf *core.Config, logger core.Logger) (*commandLine, func(), error) {
	var (
		db         *sqlx.DB
		compRepo   completion.Repository
		progRepo   progress.Repository
		closeFuncs []func() error
	)
	if conf.Database.Engine == "memory" {
		mem := inmemdb.Open()
		compRepo = inmemdb.NewCompletionRepository(mem)
		progRepo = inmemdb.NewProgressRepository(mem)
	} else {
		var err error
		if db, err = database.Open(conf); err != nil {
			return nil, nil, err
		}
		compRepo = sqlxrepos.NewCompletionRepository(db)
		progRepo = sqlxrepos.NewProgressRepository(db)
		closeFuncs = append(closeFuncs, db.Close)
	}

	var cache progress.StructureCache = progress.NewMemoryCache(conf.Progress.StructureTTL)
	if conf.Redis.Address != "" {
		client := rediscache.NewClient(conf.Redis)
		cache = rediscache.NewStructureCache(client, conf.Progress.StructureTTL)
		closeFuncs = append(closeFuncs, client.Close)
	}

	publisher, err := eventsvc.NewPublisher(conf.AMQP, logger)
	if err != nil {
		for _, c := range closeFuncs {
			_ = c()
		}
		return nil, nil, err
	}

	agg := progress.NewAggregator(progRepo, cache, publisher, logger, conf.Progress)
	writer := completion.NewWriter(compRepo, agg, notifysvc.New(conf, logger), publisher, logger, conf.Completion)
	queue := completion.NewPendingQueue(writer, logger, conf.Completion)

	cleanup := func() {
		agg.Wait() // completions schedule recomputes
		if err := publisher.Close(); err != nil {
			logger.Error("closing event publisher", err)
		}
		for _, c := range closeFuncs {
			if err := c(); err != nil {
				logger.Error("closing resource", err)
			}
		}
	}

	return &commandLine{
		db:  db,
		svc: completion.NewService(compRepo, writer, queue, logger, conf.Completion),
		agg: agg,
		in:  os.Stdin,
		out: os.Stdout,
	}, cleanup, nil
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
