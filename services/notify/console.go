package notifysvc

import (
	"github.com/trezcool/maendeleo/core"
)

type consoleNotifier struct {
	logger core.Logger
}

var _ core.Notifier = (*consoleNotifier)(nil)

// NewConsoleNotifier writes notifications to the application log.
func NewConsoleNotifier(logger core.Logger) core.Notifier {
	return &consoleNotifier{logger: logger}
}

func (n consoleNotifier) Notify(notif core.Notification) {
	args := []interface{}{map[string]interface{}{
		"severity":    notif.Severity.String(),
		"description": notif.Description,
	}}
	if notif.UserID != "" {
		args = append(args, core.Person{ID: notif.UserID})
	}

	switch notif.Severity {
	case core.SeverityCritical, core.SeverityError:
		n.logger.Error(notif.Title, args...)
	case core.SeverityWarning:
		n.logger.Warn(notif.Title, args...)
	default:
		n.logger.Info(notif.Title, args...)
	}
}

// Multi fans a notification out to every notifier.
type Multi []core.Notifier

func (m Multi) Notify(notif core.Notification) {
	for _, n := range m {
		n.Notify(notif)
	}
}
