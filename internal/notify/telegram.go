package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel delivers reminders as Telegram messages. It is the push
// path of the chain: it reaches the user's device even when the app is not
// open anywhere.
type TelegramChannel struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramChannel creates the channel. An empty token yields a channel
// that reports itself unavailable rather than an error, so a missing bot
// configuration degrades silently.
func NewTelegramChannel(token string, chatID int64) (*TelegramChannel, error) {
	if token == "" || chatID == 0 {
		return &TelegramChannel{}, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &TelegramChannel{api: api, chatID: chatID}, nil
}

func (c *TelegramChannel) Name() string { return "telegram-push" }

func (c *TelegramChannel) Available() bool {
	return c != nil && c.api != nil && c.chatID != 0
}

func (c *TelegramChannel) Deliver(n Notification) error {
	if !c.Available() {
		return ErrNotAvailable
	}
	return c.SendText(c.chatID, n.Title+"\n\n"+n.Body)
}

// SendText sends a plain message to a chat. Also used by the registry
// dispatcher for telegram-backed subscription rows.
func (c *TelegramChannel) SendText(chatID int64, text string) error {
	if c == nil || c.api == nil {
		return ErrNotAvailable
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("notify: send telegram message: %w", err)
	}
	return nil
}
