// Package keyboard renders reply keyboards for each conversation step.
package keyboard

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/workmanhq/workman-bot/internal/conversation"
)

// Builder creates reply keyboards from the choice labels the conversation
// engine attaches to outbound messages.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{log: log}
}

// Choices lays out the given labels as a reply keyboard. The confirm and
// decline labels share a row; the share-location label becomes a Telegram
// location-request button; everything else gets its own row.
func (b *Builder) Choices(labels ...string) *telebot.ReplyMarkup {
	if len(labels) == 0 {
		return b.Remove()
	}

	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}

	rows := make([]telebot.Row, 0, len(labels))
	var pending []telebot.Btn

	for _, label := range labels {
		switch label {
		case conversation.ShareLocationLabel:
			rows = append(rows, markup.Row(markup.Location(label)))
		case conversation.ConfirmLabel, conversation.DeclineLabel:
			pending = append(pending, markup.Text(label))
		default:
			rows = append(rows, markup.Row(markup.Text(label)))
		}
	}

	if len(pending) > 0 {
		rows = append(rows, markup.Row(pending...))
	}

	markup.Reply(rows...)
	return markup
}

// Remove hides any visible reply keyboard.
func (b *Builder) Remove() *telebot.ReplyMarkup {
	return &telebot.ReplyMarkup{RemoveKeyboard: true}
}
