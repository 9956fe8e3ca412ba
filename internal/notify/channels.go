package notify

import (
	"errors"

	"github.com/rs/zerolog"
)

// Notification is one reminder delivery: a title plus a short body listing
// pending items
type Notification struct {
	Title string
	Body  string
	Count int
}

// Channel is one capability-checked delivery strategy. The gateway walks an
// ordered list of channels and stops at the first successful delivery.
type Channel interface {
	Name() string
	Available() bool
	Deliver(n Notification) error
}

// ErrNotAvailable is returned by channels that cannot currently deliver
var ErrNotAvailable = errors.New("notify: channel not available")

// ForegroundChannel shows an in-app alert while a front-end is attached and
// visible. Show is injected by whoever renders the UI.
type ForegroundChannel struct {
	Visible func() bool
	Show    func(n Notification) error
}

func (c *ForegroundChannel) Name() string { return "foreground" }

func (c *ForegroundChannel) Available() bool {
	return c.Visible != nil && c.Show != nil && c.Visible()
}

func (c *ForegroundChannel) Deliver(n Notification) error {
	if !c.Available() {
		return ErrNotAvailable
	}
	return c.Show(n)
}

// AgentChannel hands the notification to the background sync agent, which
// displays it outside the page context. Post enqueues into the agent's
// mailbox.
type AgentChannel struct {
	Post func(title, body string) error
}

func (c *AgentChannel) Name() string { return "background-agent" }

func (c *AgentChannel) Available() bool { return c.Post != nil }

func (c *AgentChannel) Deliver(n Notification) error {
	if c.Post == nil {
		return ErrNotAvailable
	}
	return c.Post(n.Title, n.Body)
}

// LogChannel is the last-resort fallback: the reminder lands in the
// structured log instead of being dropped
type LogChannel struct {
	Log zerolog.Logger
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Available() bool { return true }

func (c *LogChannel) Deliver(n Notification) error {
	c.Log.Info().Str("title", n.Title).Str("body", n.Body).Int("count", n.Count).Msg("reminder")
	return nil
}
