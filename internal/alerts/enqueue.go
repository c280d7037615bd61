package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opay-dz/opay/internal/telegram"
)

// Sink accepts Telegram notifications for asynchronous delivery. Enqueue
// never fails the caller; delivery problems are logged.
type Sink interface {
	Enqueue(ctx context.Context, notifyType string, record any)
}

// Discard drops every notification.
var Discard Sink = discard{}

type discard struct{}

func (discard) Enqueue(context.Context, string, any) {}

// Enqueue schedules a telegram:notify task. Fraud alerts use the alerts queue.
func (p *Processor) Enqueue(ctx context.Context, notifyType string, record any) {
	task, err := NewTelegramTask(notifyType, record)
	if err != nil {
		logger.Error().Err(err).Str("type", notifyType).Msg("could not build notification task")
		return
	}
	queue := QueueNotify
	if notifyType == "fraud_alert" || notifyType == "p2p_dispute" {
		queue = QueueAlerts
	}
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(queue), asynq.MaxRetry(5)); err != nil {
		logger.Error().Err(err).Str("type", notifyType).Msg("could not enqueue notification")
	}
}

// NewTelegramTask encodes record (any JSON-encodable value) into a task.
func NewTelegramTask(notifyType string, record any) (*asynq.Task, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	rec := telegram.Record{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		// scalars and arrays are wrapped so the template still has something to show
		rec = telegram.Record{"value": json.RawMessage(raw)}
	}
	b, err := json.Marshal(TelegramPayload{Type: notifyType, Record: rec, QueuedAt: time.Now()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTelegramNotify, b), nil
}
