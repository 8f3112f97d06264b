package notifysvc

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/maendeleo/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// SendgridNotifier emails the operations team about notifications at or above
// MinSeverity. Sending happens in the background.
type SendgridNotifier struct {
	key         string
	from        *sgmail.Email
	to          *sgmail.Email
	subjPrefix  string
	MinSeverity core.Severity
	logger      core.Logger
	wg          sync.WaitGroup
}

var _ core.Notifier = (*SendgridNotifier)(nil)

func NewSendgridNotifier(conf *core.Config, logger core.Logger) *SendgridNotifier {
	return &SendgridNotifier{
		key:         conf.Notify.SendgridAPIKey,
		from:        sgmail.NewEmail(conf.Notify.FromName, conf.Notify.FromEmail),
		to:          sgmail.NewEmail("Operations", conf.Notify.OpsEmail),
		subjPrefix:  "[" + conf.AppName + "] ",
		MinSeverity: core.SeverityError,
		logger:      logger,
	}
}

func (svc *SendgridNotifier) Notify(notif core.Notification) {
	if notif.Severity < svc.MinSeverity {
		return
	}
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.send(notif)
	}()
}

// Wait blocks until every email in flight has been handed to Sendgrid.
func (svc *SendgridNotifier) Wait() {
	svc.wg.Wait()
}

func (svc *SendgridNotifier) prepare(notif core.Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + notif.Severity.String() + ": " + notif.Title
	p.AddTos(svc.to)

	text := notif.Description
	if notif.UserID != "" {
		text += "\r\n\r\nUser: " + notif.UserID
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", text))
	return m
}

func (svc *SendgridNotifier) send(notif core.Notification) {
	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(notif))

	res, err := sendgrid.API(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending notification email: %v", err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending notification email - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}

// New returns the notifier for conf: the log, plus ops emails when Sendgrid is configured.
func New(conf *core.Config, logger core.Logger) core.Notifier {
	console := NewConsoleNotifier(logger)
	if conf.Notify.SendgridAPIKey == "" || conf.Notify.OpsEmail == "" || conf.TestMode {
		return console
	}
	return Multi{console, NewSendgridNotifier(conf, logger)}
}
