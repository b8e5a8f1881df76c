package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Templates known by the mail relay.
const (
	TemplateOrderPending   = "orderPending"
	TemplateOrderConfirmed = "orderConfirmed"
	TemplateOrderIncoming  = "orderIncoming"
)

type Dispatcher interface {
	Send(ctx context.Context, to string, template string, data map[string]any) error
}

type Message struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// LogDispatcher only writes the message to the log. It is used when no mail
// relay is configured.
type LogDispatcher struct {
	logger log.FieldLogger
}

func NewLogDispatcher(logger log.FieldLogger) *LogDispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, to string, template string, data map[string]any) error {
	d.logger.WithFields(log.Fields{
		"to":       to,
		"template": template,
		"keys":     len(data),
	}).Info("notification not delivered: no mail relay configured")
	return nil
}
