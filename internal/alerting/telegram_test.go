package alerting

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/adiga-code/numerology/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type recordingTelegram struct {
	domain.TelegramService
	chats []int64
	texts []string
	err   error
}

func (r *recordingTelegram) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	r.chats = append(r.chats, chatID)
	r.texts = append(r.texts, text)
	return tgbotapi.Message{}, r.err
}

func TestTelegramAlerter(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("SendsToOperatorChat", func(t *testing.T) {
		tg := &recordingTelegram{}
		NewTelegramAlerter(tg, 777, &logger).Alert(ctx, "no report provider configured")
		assert.Equal(t, []int64{777}, tg.chats)
		assert.Contains(t, tg.texts[0], "no report provider configured")
	})

	t.Run("NoChatOnlyLogs", func(t *testing.T) {
		tg := &recordingTelegram{}
		NewTelegramAlerter(tg, 0, &logger).Alert(ctx, "x")
		assert.Empty(t, tg.chats)
	})

	t.Run("SendErrorIsSwallowed", func(t *testing.T) {
		tg := &recordingTelegram{err: errors.New("blocked")}
		assert.NotPanics(t, func() {
			NewTelegramAlerter(tg, 1, &logger).Alert(ctx, "x")
		})
		assert.Len(t, tg.chats, 1)
	})

	t.Run("NilTelegram", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewTelegramAlerter(nil, 1, &logger).Alert(ctx, "x")
		})
	})
}
