package bot

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/workmanhq/workman-bot/internal/conversation"
)

// CommandHelp prints usage without touching the conversation session.
const CommandHelp = "/help"

const helpText = "WorkMan finds technical services near you.\n\n" +
	conversation.CommandStart + " - begin a service request\n" +
	conversation.CommandCancel + " - abandon the current request\n" +
	CommandHelp + " - show this message\n\n" +
	"Describe what you need, share your location, and pick a service from the list."

func newHelpHandler() Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		return c.Send(helpText)
	}
}
