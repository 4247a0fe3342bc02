package conversation

// Fixed labels recognized verbatim, independent of the loaded message catalog.
const (
	// CommandStart begins a fresh conversation.
	CommandStart = "/start"
	// CommandCancel terminates the conversation from any state.
	CommandCancel = "/cancel"

	// TriggerLabel is the reply-button text that enters the description step.
	TriggerLabel = "Start Service Request 🛠"
	// ShareLocationLabel asks Telegram to attach the device location.
	ShareLocationLabel = "Share Location 📍"
	// ManualLocationLabel switches to typed location entry.
	ManualLocationLabel = "Enter Location Manually ✍️"
	// ConfirmLabel places the order.
	ConfirmLabel = "Confirm ✅"
	// DeclineLabel abandons the order at the confirmation step.
	DeclineLabel = "Cancel ❌"
)

// Texts holds every sentence the engine sends. Values come from the i18n
// catalog at startup; DefaultTexts supplies the built-in English copy.
type Texts struct {
	Welcome            string
	DescribePrompt     string
	LocationPrompt     string
	ManualPrompt       string
	NoServices         string
	SelectPrompt       string
	SelectNotFound     string
	ConfirmPrompt      string
	OrderPlaced        string
	OrderFailed        string
	OrderDeclined      string
	Cancelled          string
	StartHint          string
	EmptyInput         string
	ConfirmHint        string
	ServiceGone        string
	BackendUnavailable string
}

// DefaultTexts returns the English copy used when no catalog is loaded.
func DefaultTexts() Texts {
	return Texts{
		Welcome: "Welcome to WorkMan! 👋\n" +
			"We takin' care of your technical service needs.\n" +
			"Press the button below to start.",
		DescribePrompt: "Please describe the service you need in detail.\n" +
			"For example: 'I need a plumber to fix a leaking tap'",
		LocationPrompt: "Please share your location to find services near you.",
		ManualPrompt:   "Please type your location as city, country. For example: 'Kampala, Uganda'",
		NoServices:     "Sorry, no services available in your area at the moment.",
		SelectPrompt:   "Please select a service from the available options:",
		SelectNotFound: "That service was not found. Please pick one of the listed options.",
		ConfirmPrompt: "You ordered: %s\n" +
			"You'll be charged %s %d for the service.\n" +
			"Description: %s\n\n" +
			"Would you like to confirm this order?",
		OrderPlaced:        "Order placed. A WorkMan is takin' care.",
		OrderFailed:        "Oops, there was an error processing your order. Please try again.",
		OrderDeclined:      "Order cancelled. Feel free to start again with /start.",
		Cancelled:          "Conversation cancelled. Send /start to begin again.",
		StartHint:          "Send /start to begin a service request.",
		EmptyInput:         "Please describe the service you need in a short message.",
		ConfirmHint:        "Please answer with one of the buttons below.",
		ServiceGone:        "Sorry, that service is no longer available. Send /start to try again.",
		BackendUnavailable: "Oops, something went wrong on our side. Please try again later.",
	}
}
