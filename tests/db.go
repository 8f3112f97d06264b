package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maendeleo/storage/database"
)

// OpenDB opens a migrated in-memory sqlite database, closed at the end of the test.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.OpenMemory("test_" + strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

// SeedCatalog inserts a course with a single module holding the given units.
func SeedCatalog(t *testing.T, db *sqlx.DB, courseID string, units ...UnitSpec) {
	t.Helper()

	moduleID := courseID + "-m1"
	db.MustExec(db.Rebind(`INSERT INTO courses (id, title) VALUES (?, ?)`), courseID, "Course "+courseID)
	db.MustExec(db.Rebind(`INSERT INTO course_modules (id, course_id, title) VALUES (?, ?, ?)`), moduleID, courseID, "Module 1")
	for i, us := range units {
		var videoURL interface{}
		if strings.Contains(us.Content, "v") {
			videoURL = "https://videos.local/" + us.ID + ".mp4"
		}
		db.MustExec(db.Rebind(`INSERT INTO units (id, module_id, title, video_url, position) VALUES (?, ?, ?, ?, ?)`),
			us.ID, moduleID, "Unit "+us.ID, videoURL, i)
		if strings.Contains(us.Content, "q") {
			db.MustExec(db.Rebind(`INSERT INTO quizzes (id, unit_id) VALUES (?, ?)`), us.ID+"-quiz", us.ID)
		}
	}
}

// AddQuizAttempt records a quiz attempt of a user on a unit seeded by SeedCatalog.
func AddQuizAttempt(t *testing.T, db *sqlx.DB, userID, unitID string, passed bool, at time.Time) {
	t.Helper()

	score := 40
	if passed {
		score = 90
	}
	db.MustExec(db.Rebind(`INSERT INTO quiz_attempts (id, quiz_id, user_id, score, passed, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), unitID+"-quiz", userID, score, passed, at.UTC())
}
