package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/conflictwatch/internal/model"
)

const (
	alertStreamName    = "ALERTS"
	alertSubjectPrefix = "alert."
)

// AlertPublisher fans detected critical events out to JetStream so
// external notification dispatchers can consume them. Delivery is
// at-least-once; dispatchers flip the stored notified flag themselves.
type AlertPublisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewAlertPublisher creates the publisher and ensures the alert
// stream exists
func NewAlertPublisher(logger *zap.Logger, js nats.JetStreamContext) (*AlertPublisher, error) {
	p := &AlertPublisher{
		logger: logger.Named("alert-publisher"),
		js:     js,
	}

	_, err := js.StreamInfo(alertStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     alertStreamName,
			Subjects: []string{alertSubjectPrefix + "*"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create alert stream: %w", err)
		}
	}

	return p, nil
}

// PublishAlerts implements orchestrator.AlertSink. Each alert goes to
// alert.<severity> so dispatchers can subscribe by urgency.
func (p *AlertPublisher) PublishAlerts(ctx context.Context, alerts []model.CriticalEvent) error {
	for i := range alerts {
		alert := &alerts[i]
		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}

		subject := alertSubjectPrefix + string(alert.Severity)
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish alert %s: %w", alert.EventID, err)
		}

		p.logger.Info("Alert published",
			zap.String("event_id", alert.EventID),
			zap.String("severity", string(alert.Severity)),
			zap.Int("fatalities", alert.Fatalities))
	}
	return nil
}

// SubscribeAlerts delivers published alerts to a dispatcher callback
// until the context is cancelled
func (p *AlertPublisher) SubscribeAlerts(ctx context.Context, handler func(model.CriticalEvent)) error {
	sub, err := p.js.Subscribe(alertSubjectPrefix+"*", func(msg *nats.Msg) {
		var alert model.CriticalEvent
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			p.logger.Error("Failed to unmarshal alert", zap.Error(err))
			return
		}
		handler(alert)
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
