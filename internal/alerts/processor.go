package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/telegram"
)

var logger = logging.NewPackageLogger("alerts")

// Relay delivers a formatted Telegram notification.
type Relay interface {
	Notify(ctx context.Context, notifyType string, record telegram.Record) (telegram.Result, error)
}

// Processor owns the asynq client used to enqueue notifications and the
// server that delivers them.
type Processor struct {
	client *asynq.Client
	server *asynq.Server
	relay  Relay
}

// NewProcessor connects to Redis at redisAddr.
func NewProcessor(redisAddr string, relay Relay) *Processor {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &Processor{
		client: asynq.NewClient(opts),
		server: asynq.NewServer(opts, asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				QueueAlerts: 10,
				QueueNotify: 5,
			},
			Logger: asynqLogger{},
		}),
		relay: relay,
	}
}

// Mux routes task types to handlers.
func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTelegramNotify, p.handleTelegramNotify)
	return mux
}

// Start runs the worker server in the background.
func (p *Processor) Start() error {
	if err := p.server.Start(p.Mux()); err != nil {
		return errors.Wrap(err, "start asynq server")
	}
	logger.Info().Msg("asynq worker started")
	return nil
}

// Close releases the client and stops the server.
func (p *Processor) Close() {
	if p.client != nil {
		_ = p.client.Close()
	}
	if p.server != nil {
		p.server.Shutdown()
	}
}

func (p *Processor) handleTelegramNotify(ctx context.Context, t *asynq.Task) error {
	var payload TelegramPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// a malformed payload will never succeed
		return errors.Wrap(asynq.SkipRetry, err.Error())
	}
	res, err := p.relay.Notify(ctx, payload.Type, payload.Record)
	if errors.Is(err, telegram.ErrNoRecipients) {
		logger.Debug().Str("type", payload.Type).Msg("telegram not configured, dropping notification")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug().Str("type", payload.Type).Int("sent", res.Sent).Int("failed", res.Failed).Msg("telegram notification delivered")
	return nil
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Fatal().Msg(fmt.Sprint(args...)) }
