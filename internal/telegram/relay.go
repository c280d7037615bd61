package telegram

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gopkg.in/tucnak/telebot.v2"

	"github.com/opay-dz/opay/internal/logging"
	"github.com/opay-dz/opay/internal/metrics"
)

var logger = logging.NewPackageLogger("telegram")

var ErrNoRecipients = errors.New("no telegram chat configured")

// Sender delivers one HTML message to one chat.
type Sender interface {
	Send(chatID int64, text string) error
}

// BotSender sends through the Telegram Bot API.
type BotSender struct {
	bot *telebot.Bot
}

// NewBotSender builds an offline bot: it never polls and never calls getMe,
// it only posts sendMessage requests to apiURL.
func NewBotSender(token, apiURL string) (*BotSender, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &BotSender{bot: bot}, nil
}

func (s *BotSender) Send(chatID int64, text string) error {
	_, err := s.bot.Send(&telebot.Chat{ID: chatID}, text, telebot.ModeHTML, telebot.NoPreview)
	return err
}

// Result is returned to callers of the relay.
type Result struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
}

// Relay fans a formatted notification out to every configured chat.
type Relay struct {
	sender  Sender
	chatIDs []int64
}

// NewRelay ignores zero chat ids and keeps at most two recipients.
func NewRelay(sender Sender, chatIDs ...int64) *Relay {
	r := &Relay{sender: sender}
	for _, id := range chatIDs {
		if id != 0 && len(r.chatIDs) < 2 {
			r.chatIDs = append(r.chatIDs, id)
		}
	}
	return r
}

// Notify succeeds when at least one chat accepted the message.
func (r *Relay) Notify(ctx context.Context, notifyType string, record Record) (Result, error) {
	if r.sender == nil || len(r.chatIDs) == 0 {
		return Result{}, ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := Format(notifyType, record)

	// per-chat failures are counted, never returned
	var (
		g            errgroup.Group
		sent, failed int32
	)
	for _, id := range r.chatIDs {
		id := id
		g.Go(func() error {
			if err := r.sender.Send(id, text); err != nil {
				atomic.AddInt32(&failed, 1)
				metrics.TelegramSends.WithLabelValues("failed").Inc()
				logger.Warn().Err(err).Int64("chat_id", id).Str("type", notifyType).Msg("telegram send failed")
				return nil
			}
			atomic.AddInt32(&sent, 1)
			metrics.TelegramSends.WithLabelValues("sent").Inc()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Success: sent > 0, Sent: int(sent), Failed: int(failed)}
	if !res.Success {
		return res, errors.New("telegram rejected the message for every chat")
	}
	return res, nil
}
