package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/tests"
)

type outcomeResponse struct {
	Strategy         string `json:"strategy"`
	AlreadyCompleted bool   `json:"already_completed"`
	ShouldComplete   bool   `json:"should_complete"`
	Pending          bool   `json:"pending"`
	Write            *struct {
		Method  string `json:"method"`
		Success bool   `json:"success"`
	} `json:"write"`
}

type resultResponse struct {
	Percentage     int             `json:"progress_percentage"`
	Status         progress.Status `json:"status"`
	CompletedUnits int             `json:"completed_units"`
	TotalUnits     int             `json:"total_units"`
	Retained       bool            `json:"retained"`
}

func TestHome(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Maendeleo API!", rec.Body.String())
}

func TestAuth(t *testing.T) {
	e := setup(t, testutil.UnitSpec{ID: "u1", Content: "q"})

	rec := e.do(t, http.MethodGet, "/v1/units/u1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/v1/units/u1/status", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/admin/progress/recalculate", e.token(t, learnerID, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	var herr httpErr
	decode(t, rec, &herr)
	assert.Equal(t, "permission denied", herr.Error)

	rec = e.do(t, http.MethodGet, "/v1/users/"+otherID+"/progress?course="+courseID, e.token(t, learnerID, false), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCompletionAPI_trigger(t *testing.T) {
	e := setup(t,
		testutil.UnitSpec{ID: "u1", Content: "q"},
		testutil.UnitSpec{ID: "u2", Content: "vq"},
	)
	token := e.token(t, learnerID, false)

	t.Run("quiz only unit completes on quiz", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/units/u1/triggers", token, map[string]string{"trigger": "quiz_complete"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out outcomeResponse
		decode(t, rec, &out)
		assert.Equal(t, "quiz_only", out.Strategy)
		assert.True(t, out.ShouldComplete)
		require.NotNil(t, out.Write)
		assert.True(t, out.Write.Success)
		assert.Equal(t, completion.MethodQuizComplete, out.Write.Method)

		st := e.status(t, token, "u1")
		assert.True(t, st.Status.UnitCompleted)
		assert.Equal(t, completion.Key{UserID: learnerID, UnitID: "u1", CourseID: courseID}, st.Key)
	})

	t.Run("video and quiz unit waits for both", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/units/u2/triggers", token, map[string]string{"trigger": "quiz_complete"})
		require.Equal(t, http.StatusOK, rec.Code)
		var out outcomeResponse
		decode(t, rec, &out)
		assert.False(t, out.ShouldComplete)
		assert.Nil(t, out.Write)

		st := e.status(t, token, "u2")
		assert.True(t, st.Status.QuizCompleted)
		assert.False(t, st.Status.UnitCompleted)
	})

	t.Run("completed unit is left alone", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/units/u1/triggers", token, map[string]string{"trigger": "manual"})
		require.Equal(t, http.StatusOK, rec.Code)
		var out outcomeResponse
		decode(t, rec, &out)
		assert.True(t, out.AlreadyCompleted)
	})

	t.Run("invalid trigger", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/units/u1/triggers", token, map[string]string{"trigger": "watched"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, "must be one of: video_complete, quiz_complete, manual", fields["trigger"])

		rec = e.do(t, http.MethodPost, "/v1/units/u1/triggers", token, map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		decode(t, rec, &fields)
		assert.Equal(t, "this field is required", fields["trigger"])
	})

	t.Run("unknown unit", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/units/nope/triggers", token, map[string]string{"trigger": "manual"})
		require.Equal(t, http.StatusNotFound, rec.Code)
		var herr httpErr
		decode(t, rec, &herr)
		assert.Equal(t, completion.ErrUnitNotFound.Error(), herr.Error)
	})
}

func TestCompletionAPI_storeUnavailable(t *testing.T) {
	e := setup(t, testutil.UnitSpec{ID: "u1", Content: "q"})
	e.db.SetUnavailable(true)

	rec := e.do(t, http.MethodGet, "/v1/units/u1/status", e.token(t, learnerID, false), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, e.logger.Count("warn"))
	assert.Zero(t, e.logger.Count("error"))
}

func TestCompletionAPI_videoProgress(t *testing.T) {
	e := setup(t,
		testutil.UnitSpec{ID: "u1", Content: "v"},
		testutil.UnitSpec{ID: "u2", Content: "q"},
	)
	token := e.token(t, learnerID, false)

	for _, pct := range []int{40, 95, 70} {
		rec := e.do(t, http.MethodPost, "/v1/units/u1/video-progress", token, map[string]int{"percent": pct})
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}

	// ticks are coalesced and written once the player goes quiet
	assert.Eventually(t, func() bool {
		rec := e.do(t, http.MethodGet, "/v1/units/u1/status", token, nil)
		var resp statusResponse
		return json.Unmarshal(rec.Body.Bytes(), &resp) == nil && resp.Status.UnitCompleted
	}, time.Second, 10*time.Millisecond)

	rec := e.do(t, http.MethodPost, "/v1/units/u1/video-progress", token, map[string]int{"percent": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/v1/units/u2/video-progress", token, map[string]int{"percent": 50})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCompletionAPI_overrideAndPending(t *testing.T) {
	e := setup(t, testutil.UnitSpec{ID: "u1", Content: "v"})
	token := e.token(t, learnerID, false)

	rec := e.do(t, http.MethodPost, "/v1/units/u1/override", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, e.status(t, token, "u1").CanManualOverride)

	rec = e.do(t, http.MethodGet, "/v1/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodPost, "/v1/pending/retry", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = e.do(t, http.MethodDelete, "/v1/pending", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodDelete, "/v1/pending?confirm=true", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared": 0}`, rec.Body.String())
}

func TestProgressAPI(t *testing.T) {
	e := setup(t,
		testutil.UnitSpec{ID: "u1", Content: "q"},
		testutil.UnitSpec{ID: "u2", Content: "q"},
		testutil.UnitSpec{ID: "u3", Content: ""},
		testutil.UnitSpec{ID: "u4", Content: ""},
		testutil.UnitSpec{ID: "u5", Content: ""},
	)
	testutil.CompleteUnits(e.db, learnerID, courseID, "u1", "u2", "u3")
	token := e.token(t, learnerID, false)

	t.Run("refresh", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/courses/"+courseID+"/progress/refresh", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res resultResponse
		decode(t, rec, &res)
		assert.Equal(t, 60, res.Percentage)
		assert.Equal(t, progress.StatusInProgress, res.Status)
		assert.Equal(t, 3, res.CompletedUnits)
		assert.Equal(t, 5, res.TotalUnits)
	})

	t.Run("dashboard", func(t *testing.T) {
		path := "/v1/users/" + learnerID + "/progress?course=" + courseID + ",course-2"
		rec := e.do(t, http.MethodGet, path, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var br progress.BatchResult
		decode(t, rec, &br)
		assert.Equal(t, []string{courseID, "course-2"}, br.Succeeded)
		assert.Zero(t, br.FailureCount)

		// admins see every learner
		rec = e.do(t, http.MethodGet, path, e.token(t, "admin", true), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("dashboard needs courses", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/v1/users/"+learnerID+"/progress", token, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "course")
	})
}

func TestAdminAPI(t *testing.T) {
	e := setup(t,
		testutil.UnitSpec{ID: "u1", Content: "q"},
		testutil.UnitSpec{ID: "u2", Content: "vq"},
	)
	admin := e.token(t, "admin", true)
	learner := e.token(t, learnerID, false)

	t.Run("complete", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/admin/completions", admin, map[string]string{"user_id": learnerID, "unit_id": "u2"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, strings.Contains(rec.Body.String(), completion.MethodAdminOverride))
		assert.True(t, e.status(t, learner, "u2").Status.UnitCompleted)

		rec = e.do(t, http.MethodPost, "/v1/admin/completions", admin, map[string]string{"user_id": learnerID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("quiz completions", func(t *testing.T) {
		e.db.AddQuizPass(otherID, "u1", time.Now().Add(-time.Hour))

		rec := e.do(t, http.MethodGet, "/v1/admin/quiz-completions", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report completion.RepairReport
		decode(t, rec, &report)
		assert.True(t, report.DryRun)
		assert.Equal(t, 1, report.Scanned)
		assert.Zero(t, report.UnitsCompleted)

		rec = e.do(t, http.MethodPost, "/v1/admin/quiz-completions/fix", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &report)
		assert.False(t, report.DryRun)
		assert.Equal(t, 1, report.UnitsCompleted)
		assert.True(t, e.status(t, e.token(t, otherID, false), "u1").Status.UnitCompleted)
	})

	t.Run("recalculate", func(t *testing.T) {
		e.agg.Wait()
		rec := e.do(t, http.MethodPost, "/v1/admin/progress/recalculate", admin, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var br progress.BatchResult
		decode(t, rec, &br)
		assert.ElementsMatch(t, []string{learnerID + "/" + courseID, otherID + "/" + courseID}, br.Succeeded)
	})

	t.Run("users progress", func(t *testing.T) {
		body := map[string]interface{}{"course_id": courseID, "user_ids": []string{learnerID, otherID}}
		rec := e.do(t, http.MethodPost, "/v1/admin/progress/users", admin, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var br progress.BatchResult
		decode(t, rec, &br)
		assert.Equal(t, []string{learnerID, otherID}, br.Succeeded)

		rec = e.do(t, http.MethodPost, "/v1/admin/progress/users", admin, map[string]interface{}{"course_id": courseID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalidate structure", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/v1/admin/courses/"+courseID+"/structure/invalidate", admin, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
