package bot

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/workmanhq/workman-bot/internal/bot/keyboard"
	"github.com/workmanhq/workman-bot/internal/conversation"
	apperrors "github.com/workmanhq/workman-bot/internal/errors"
)

// TelegramMessenger delivers conversation engine messages over Telegram.
type TelegramMessenger struct {
	bot      *telebot.Bot
	keyboard *keyboard.Builder
	log      *slog.Logger
}

var _ conversation.Messenger = (*TelegramMessenger)(nil)

// NewTelegramMessenger builds the outbound side of the bot.
func NewTelegramMessenger(bot *telebot.Bot, kb *keyboard.Builder, log *slog.Logger) *TelegramMessenger {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramMessenger{bot: bot, keyboard: kb, log: log}
}

// SendText sends a plain text message with the choices as a reply keyboard.
func (m *TelegramMessenger) SendText(ctx context.Context, userID int64, text string, choices ...string) error {
	_, err := m.bot.Send(telebot.ChatID(userID), text, m.keyboard.Choices(choices...))
	if err != nil {
		m.log.Error("failed to send message", slog.Int64("user_id", userID), slog.Any("error", err))
		return apperrors.NewDeliveryError(err)
	}
	return nil
}

// SendPhoto sends a listing image with a caption. Local paths are uploaded,
// anything else is passed through as a URL for Telegram to fetch.
func (m *TelegramMessenger) SendPhoto(ctx context.Context, userID int64, imageRef, caption string, choices ...string) error {
	photo := &telebot.Photo{Caption: caption}
	if strings.HasPrefix(imageRef, "http://") || strings.HasPrefix(imageRef, "https://") {
		photo.File = telebot.FromURL(imageRef)
	} else {
		photo.File = telebot.FromDisk(imageRef)
	}

	_, err := m.bot.Send(telebot.ChatID(userID), photo, m.keyboard.Choices(choices...))
	if err != nil {
		m.log.Error("failed to send photo", slog.Int64("user_id", userID), slog.Any("error", err))
		return apperrors.NewDeliveryError(err)
	}
	return nil
}
