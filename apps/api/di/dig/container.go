package dig_container

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/maendeleo/apps/api/echo"
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

// Closer releases a resource at shutdown.
type Closer func() error

type Stores struct {
	dig.Out

	Completion completion.Repository
	Progress   progress.Repository
	Close      Closer `name:"dbCloser"`
}

type CloserParam struct {
	dig.In
	DB Closer `name:"dbCloser"`
}

func newLogger(conf *core.Config) (core.Logger, *logsvc.RollbarLogger, error) {
	logger, err := logsvc.NewRollbarLogger(conf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building logger")
	}
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger, logger, nil
}

func newStores(conf *core.Config, logger core.Logger) (Stores, error) {
	if conf.Database.Engine == "memory" {
		logger.Warn("using the in-memory store: progress is lost on restart")
		db := inmemdb.Open()
		return Stores{
			Completion: inmemdb.NewCompletionRepository(db),
			Progress:   inmemdb.NewProgressRepository(db),
			Close:      func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return Stores{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return Stores{}, err
	}
	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return Stores{}, err
	}
	return Stores{
		Completion: sqlxrepos.NewCompletionRepository(db),
		Progress:   sqlxrepos.NewProgressRepository(db),
		Close:      db.Close,
	}, nil
}

func newStructureCache(conf *core.Config, logger core.Logger) progress.StructureCache {
	if conf.Redis.Address == "" {
		return progress.NewMemoryCache(conf.Progress.StructureTTL)
	}
	logger.Info(fmt.Sprintf("course structure cache on redis %s", conf.Redis.Address))
	return rediscache.NewStructureCache(rediscache.NewClient(conf.Redis), conf.Progress.StructureTTL)
}

func newPublisher(conf *core.Config, logger core.Logger) (*eventsvc.Publisher, core.EventPublisher, error) {
	p, err := eventsvc.NewPublisher(conf.AMQP, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "starting event publisher")
	}
	return p, p, nil
}

func newConsumer(conf *core.Config, agg *progress.Aggregator, logger core.Logger) (*eventsvc.Consumer, error) {
	c, err := eventsvc.NewConsumer(conf.AMQP, agg, logger)
	return c, errors.Wrap(err, "starting event consumer")
}

func newAggregator(conf *core.Config, repo progress.Repository, cache progress.StructureCache, events core.EventPublisher, logger core.Logger) *progress.Aggregator {
	return progress.NewAggregator(repo, cache, events, logger, conf.Progress)
}

func newWriter(
	conf *core.Config,
	repo completion.Repository,
	agg *progress.Aggregator,
	notifier core.Notifier,
	events core.EventPublisher,
	logger core.Logger,
) *completion.Writer {
	return completion.NewWriter(repo, agg, notifier, events, logger, conf.Completion)
}

func newPendingQueue(conf *core.Config, writer *completion.Writer, logger core.Logger) *completion.PendingQueue {
	return completion.NewPendingQueue(writer, logger, conf.Completion)
}

func newService(
	conf *core.Config,
	repo completion.Repository,
	writer *completion.Writer,
	queue *completion.PendingQueue,
	logger core.Logger,
) *completion.Service {
	return completion.NewService(repo, writer, queue, logger, conf.Completion)
}

func newDebouncer(conf *core.Config, svc *completion.Service) *completion.Debouncer {
	return completion.NewDebouncer(conf.Completion.DebounceDelay, svc.FlushVideoTick)
}

func newValidator() *validator.Validate {
	return validator.New()
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newStores))
	must(c.Provide(newStructureCache))
	must(c.Provide(newPublisher))
	must(c.Provide(notifysvc.New))
	must(c.Provide(newAggregator))
	must(c.Provide(newConsumer))
	must(c.Provide(progress.NewRefresher))
	must(c.Provide(newWriter))
	must(c.Provide(newPendingQueue))
	must(c.Provide(newService))
	must(c.Provide(newDebouncer))
	must(c.Provide(newValidator))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
