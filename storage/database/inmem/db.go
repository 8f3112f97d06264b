package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
)

type (
	quizPassKey struct{ userID, unitID string }
	videoKey    struct{ userID, unitID string }

	// DB is an in-memory store honouring the same upsert rules as the SQL schema.
	DB struct {
		mu sync.RWMutex

		units          map[string]completion.Unit
		quizPasses     map[quizPassKey]time.Time
		videoProgress  map[videoKey]completion.VideoProgress
		unitProgress   map[completion.Key]completion.UnitProgress
		courseProgress map[progress.Pair]progress.CourseProgress

		unavailable bool
	}
)

func Open() *DB {
	return &DB{
		units:          make(map[string]completion.Unit),
		quizPasses:     make(map[quizPassKey]time.Time),
		videoProgress:  make(map[videoKey]completion.VideoProgress),
		unitProgress:   make(map[completion.Key]completion.UnitProgress),
		courseProgress: make(map[progress.Pair]progress.CourseProgress),
	}
}

// SetUnavailable makes every repository call fail with core.ErrStoreUnavailable.
func (db *DB) SetUnavailable(unavailable bool) {
	db.mu.Lock()
	db.unavailable = unavailable
	db.mu.Unlock()
}

func (db *DB) check(op string) error {
	if db.unavailable {
		return core.NewStoreError(op, errOffline)
	}
	return nil
}

// AddUnit adds or replaces a unit.
func (db *DB) AddUnit(units ...completion.Unit) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range units {
		db.units[u.ID] = u
	}
}

// RemoveUnit removes a unit from its course. Progress rows are kept.
func (db *DB) RemoveUnit(unitID string) {
	db.mu.Lock()
	delete(db.units, unitID)
	db.mu.Unlock()
}

// AddQuizPass records that a user passed the quiz of a unit.
func (db *DB) AddQuizPass(userID, unitID string, passedAt time.Time) {
	db.mu.Lock()
	db.quizPasses[quizPassKey{userID, unitID}] = passedAt.UTC()
	db.mu.Unlock()
}

// PutCourseProgress stores a course progress row as is.
func (db *DB) PutCourseProgress(cp progress.CourseProgress) {
	db.mu.Lock()
	db.courseProgress[progress.Pair{UserID: cp.UserID, CourseID: cp.CourseID}] = cp
	db.mu.Unlock()
}

// PutUnitProgress stores a unit progress row as is, bypassing the upsert rules.
func (db *DB) PutUnitProgress(up completion.UnitProgress) {
	db.mu.Lock()
	db.unitProgress[up.Key] = up
	db.mu.Unlock()
}
