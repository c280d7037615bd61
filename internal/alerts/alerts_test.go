package alerts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opay-dz/opay/internal/telegram"
)

type fakeRelay struct {
	gotType   string
	gotRecord telegram.Record
	err       error
}

func (f *fakeRelay) Notify(_ context.Context, notifyType string, record telegram.Record) (telegram.Result, error) {
	f.gotType, f.gotRecord = notifyType, record
	if f.err != nil {
		return telegram.Result{}, f.err
	}
	return telegram.Result{Success: true, Sent: 1}, nil
}

func TestNewTelegramTaskEncodesStructRecords(t *testing.T) {
	rec := struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	}{"d1", "1000"}

	task, err := NewTelegramTask("deposit", rec)
	require.NoError(t, err)
	assert.Equal(t, TaskTelegramNotify, task.Type())

	var p TelegramPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "deposit", p.Type)
	assert.Equal(t, "d1", p.Record["id"])
	assert.Equal(t, "1000", p.Record["amount"])
}

func TestHandleTelegramNotify(t *testing.T) {
	relay := &fakeRelay{}
	p := &Processor{relay: relay}

	task, err := NewTelegramTask("fraud_alert", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	require.NoError(t, p.handleTelegramNotify(context.Background(), task))
	assert.Equal(t, "fraud_alert", relay.gotType)
	assert.Equal(t, "u1", relay.gotRecord["user_id"])
}

func TestHandleTelegramNotifyDropsWhenUnconfigured(t *testing.T) {
	p := &Processor{relay: &fakeRelay{err: telegram.ErrNoRecipients}}
	task, err := NewTelegramTask("deposit", map[string]any{})
	require.NoError(t, err)
	assert.NoError(t, p.handleTelegramNotify(context.Background(), task))
}

func TestHandleTelegramNotifySkipsRetryOnGarbage(t *testing.T) {
	p := &Processor{relay: &fakeRelay{}}
	err := p.handleTelegramNotify(context.Background(), asynq.NewTask(TaskTelegramNotify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
