package notifier

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/pkg/waf"
)

// ConsoleNotifier writes notification events to the structured log. It is the
// default channel when no outbound endpoint is configured.
type ConsoleNotifier struct {
	logger *logrus.Logger
}

func NewConsoleNotifier(logger *logrus.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

func (n *ConsoleNotifier) Name() string {
	return "console"
}

func (n *ConsoleNotifier) Notify(ctx context.Context, event waf.NotificationEvent) error {
	entry := n.logger.WithFields(logrus.Fields{
		"type":     event.Type,
		"severity": event.Severity,
		"details":  event.Details,
	})
	switch event.Severity {
	case waf.SeverityCritical:
		entry.Error(event.Message)
	case waf.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
	return nil
}
