package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/storage/database/inmem"
)

// Config returns a configuration suited to tests: short delays and no external services.
func Config() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Maendeleo",
		SecretKey: "secret",
		Database:  core.DatabaseConfig{Engine: "memory"},
		Server: core.ServerConfig{
			Address:            ":0",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: 10 * time.Minute,
		},
		Completion: core.CompletionConfig{
			VerifyFailureThreshold: 2,
			DebounceDelay:          20 * time.Millisecond,
			RetryDelay:             10 * time.Millisecond,
			MaxAutoRetries:         3,
			VideoCompleteThreshold: 90,
		},
		Progress: core.ProgressConfig{
			StructureTTL:     5 * time.Minute,
			BatchWorkers:     4,
			BatchPageSize:    2,
			RecomputeTimeout: time.Second,
		},
	}
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Count returns the number of entries logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []core.Notification
}

func (n *Notifier) Notify(notif core.Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, notif)
	n.mu.Unlock()
}

func (n *Notifier) Count(sev core.Severity) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	var c int
	for _, notif := range n.sent {
		if notif.Severity == sev {
			c++
		}
	}
	return c
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *Publisher) Publish(_ context.Context, evt core.Event) error {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

func (p *Publisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		types = append(types, evt.Type)
	}
	return types
}

// Recomputer records scheduled course recomputes.
type Recomputer struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recomputer) Schedule(userID, courseID string) {
	r.mu.Lock()
	r.calls = append(r.calls, userID+"/"+courseID)
	r.mu.Unlock()
}

func (r *Recomputer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// UnitSpec describes a unit to seed: "v" for a video, "q" for a quiz, "vq" for both, "" for none.
type UnitSpec struct {
	ID      string
	Content string
}

// SeedCourse adds the units of a course to db.
func SeedCourse(t *testing.T, db *inmemdb.DB, courseID string, units ...UnitSpec) []completion.Unit {
	t.Helper()

	out := make([]completion.Unit, 0, len(units))
	for _, us := range units {
		u := completion.Unit{ID: us.ID, CourseID: courseID, Title: "Unit " + us.ID}
		switch us.Content {
		case "v":
			u.VideoURL = fmt.Sprintf("https://videos.local/%s.mp4", us.ID)
		case "q":
			u.HasQuiz = true
		case "vq":
			u.VideoURL = fmt.Sprintf("https://videos.local/%s.mp4", us.ID)
			u.HasQuiz = true
		case "":
		default:
			t.Fatalf("SeedCourse() unknown unit content %q", us.Content)
		}
		out = append(out, u)
	}
	db.AddUnit(out...)
	return out
}

// CompleteUnits stores completed unit progress rows for a user.
func CompleteUnits(db *inmemdb.DB, userID, courseID string, unitIDs ...string) {
	now := time.Now().UTC()
	for _, id := range unitIDs {
		db.PutUnitProgress(completion.UnitProgress{
			Key:              completion.Key{UserID: userID, UnitID: id, CourseID: courseID},
			Completed:        true,
			CompletedAt:      &now,
			CompletionMethod: completion.MethodManual,
			UpdatedAt:        now,
		})
	}
}
