package notifysvc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/tests"
)

func TestConsoleNotifier(t *testing.T) {
	logger := new(testutil.Logger)
	n := NewConsoleNotifier(logger)

	n.Notify(core.Notification{Title: "done", Severity: core.SeveritySuccess})
	n.Notify(core.Notification{Title: "retrying", Severity: core.SeverityWarning})
	n.Notify(core.Notification{Title: "failed", Severity: core.SeverityError, UserID: "u1"})
	n.Notify(core.Notification{Title: "schema", Severity: core.SeverityCritical})

	assert.Equal(t, 1, logger.Count("info"))
	assert.Equal(t, 1, logger.Count("warn"))
	assert.Equal(t, 2, logger.Count("error"))
}

func TestNew(t *testing.T) {
	conf := testutil.Config()
	_, ok := New(conf, new(testutil.Logger)).(*consoleNotifier)
	assert.True(t, ok)

	conf.TestMode = false
	conf.Notify.SendgridAPIKey = "key"
	conf.Notify.OpsEmail = "ops@example.com"
	m, ok := New(conf, new(testutil.Logger)).(Multi)
	require.True(t, ok)
	assert.Len(t, m, 2)
}

func TestSendgridNotifier(t *testing.T) {
	var (
		mu       sync.Mutex
		subjects []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Personalizations []struct {
				Subject string `json:"subject"`
			} `json:"personalizations"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		for _, p := range body.Personalizations {
			subjects = append(subjects, p.Subject)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	prevHost := host
	host = srv.URL
	defer func() { host = prevHost }()

	conf := testutil.Config()
	conf.Notify.OpsEmail = "ops@example.com"
	logger := new(testutil.Logger)
	svc := NewSendgridNotifier(conf, logger)

	svc.Notify(core.Notification{Title: "retrying", Severity: core.SeverityWarning})
	svc.Notify(core.Notification{Title: "unit progress upsert failed", Severity: core.SeverityCritical, UserID: "u1"})
	svc.Wait()

	assert.Equal(t, []string{"[Maendeleo] critical: unit progress upsert failed"}, subjects)
	assert.Zero(t, logger.Count("error"))
}
