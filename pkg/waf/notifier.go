package waf

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// NotificationEvent is what outbound channels receive on block and high-risk
// conditions.
type NotificationEvent struct {
	Type     string                 `json:"type"`
	Severity Severity               `json:"severity"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Notifier is one outbound notification channel. A failing notifier must not
// block the others, and notification failures never affect the analysis.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event NotificationEvent) error
}

const notifyTimeout = 5 * time.Second

// notifyAll fans the event out to every configured notifier concurrently and
// logs partial failures.
func (e *Engine) notifyAll(evt NotificationEvent) {
	if len(e.cfg.Notifiers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, n := range e.cfg.Notifiers {
		n := n
		g.Go(func() error {
			if err := n.Notify(ctx, evt); err != nil {
				e.logger.WithFields(logrus.Fields{
					"notifier": n.Name(),
					"type":     evt.Type,
				}).WithError(err).Warn("notifier failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
