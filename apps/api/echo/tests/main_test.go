package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/maendeleo/apps/api/echo"
	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/completion"
	"github.com/trezcool/maendeleo/core/progress"
	"github.com/trezcool/maendeleo/storage/database/inmem"
	"github.com/trezcool/maendeleo/tests"
)

const (
	learnerID = "user-1"
	otherID   = "user-2"
	courseID  = "course-1"
)

type env struct {
	app       *echoapi.Server
	conf      *core.Config
	db        *inmemdb.DB
	agg       *progress.Aggregator
	debouncer *completion.Debouncer
	logger    *testutil.Logger
}

func setup(t *testing.T, units ...testutil.UnitSpec) *env {
	t.Helper()

	conf := testutil.Config()
	db := inmemdb.Open()
	testutil.SeedCourse(t, db, courseID, units...)
	logger := new(testutil.Logger)

	agg := progress.NewAggregator(
		inmemdb.NewProgressRepository(db),
		progress.NewMemoryCache(conf.Progress.StructureTTL),
		core.NopPublisher{},
		logger,
		conf.Progress,
	)
	repo := inmemdb.NewCompletionRepository(db)
	writer := completion.NewWriter(repo, agg, new(testutil.Notifier), core.NopPublisher{}, logger, conf.Completion)
	queue := completion.NewPendingQueue(writer, logger, conf.Completion)
	svc := completion.NewService(repo, writer, queue, logger, conf.Completion)
	debouncer := completion.NewDebouncer(conf.Completion.DebounceDelay, svc.FlushVideoTick)
	t.Cleanup(func() {
		debouncer.Stop()
		agg.Wait()
	})

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	app := echoapi.NewServer(echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Completion: svc,
		Debouncer:  debouncer,
		Aggregator: agg,
		Refresher:  progress.NewRefresher(agg),
	})
	return &env{app: app, conf: conf, db: db, agg: agg, debouncer: debouncer, logger: logger}
}

func (e *env) token(t *testing.T, userID string, isAdmin bool) string {
	t.Helper()

	token, err := echoapi.GenerateToken(e.conf, echoapi.NewClaims(e.conf, userID, userID, isAdmin))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("do() failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode() failed: %v: %s", err, rec.Body.String())
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Key               completion.Key    `json:"key"`
	Strategy          string            `json:"strategy"`
	Status            completion.Status `json:"status"`
	CanManualOverride bool              `json:"can_manual_override"`
}

func (e *env) status(t *testing.T, token, unitID string) statusResponse {
	t.Helper()

	rec := e.do(t, http.MethodGet, "/v1/units/"+unitID+"/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status() = %d: %s", rec.Code, rec.Body.String())
	}
	var resp statusResponse
	decode(t, rec, &resp)
	return resp
}
