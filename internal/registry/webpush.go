package registry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPushSender delivers payloads over the Web Push protocol with VAPID
// authentication
type WebPushSender struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Send pushes one payload. Endpoint-gone responses (404/410) map to
// ErrEndpointGone so the dispatcher drops the subscription.
func (w *WebPushSender) Send(subscriptionJSON string, payload []byte) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(subscriptionJSON), &sub); err != nil {
		// A subscription that can't be parsed will never deliver
		return fmt.Errorf("%w: malformed subscription: %v", ErrEndpointGone, err)
	}

	resp, err := webpush.SendNotification(payload, &sub, &webpush.Options{
		Subscriber:      w.Subscriber,
		VAPIDPublicKey:  w.VAPIDPublicKey,
		VAPIDPrivateKey: w.VAPIDPrivateKey,
		TTL:             3600,
	})
	if err != nil {
		return fmt.Errorf("registry: webpush send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrEndpointGone, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("registry: webpush send: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// TextSender sends a plain-text message to a chat; satisfied by the
// telegram notification channel
type TextSender interface {
	SendText(chatID int64, text string) error
}

// CompositeSender routes each subscription to the transport its serialized
// credentials describe: telegram-backed endpoints go through the bot,
// everything else over Web Push.
type CompositeSender struct {
	Web      PushSender
	Telegram TextSender
}

type subscriptionShape struct {
	Endpoint string `json:"endpoint"`
	ChatID   int64  `json:"chat_id"`
}

func (c *CompositeSender) Send(subscriptionJSON string, payload []byte) error {
	var shape subscriptionShape
	if err := json.Unmarshal([]byte(subscriptionJSON), &shape); err != nil {
		return fmt.Errorf("%w: malformed subscription: %v", ErrEndpointGone, err)
	}

	if strings.HasPrefix(shape.Endpoint, "telegram:") || shape.ChatID != 0 {
		if c.Telegram == nil {
			return fmt.Errorf("registry: no telegram sender configured")
		}
		var msg struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		text := string(payload)
		if err := json.Unmarshal(payload, &msg); err == nil && msg.Title != "" {
			text = msg.Title + "\n\n" + msg.Body
		}
		return c.Telegram.SendText(shape.ChatID, text)
	}

	if c.Web == nil {
		return fmt.Errorf("registry: no web push sender configured")
	}
	return c.Web.Send(subscriptionJSON, payload)
}
