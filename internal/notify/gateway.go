package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/rewatch/pkg/models"
)

// Permission mirrors the host notification permission prompt
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// State is the per-day delivery state. It resets to Idle at local midnight.
type State int

const (
	StateIdle State = iota
	StatePendingCheck
	StateNotified
	StateSuppressed
)

const (
	metaSettings     = "notificationSettings"
	metaLastNotified = "lastNotifiedDate"
	metaPermission   = "notificationPermission"
	metaPushEndpoint = "pushEndpoint"

	dayFormat = "2006-01-02"
)

// ErrDeliveryFailed is returned by TestNotification when no channel could
// deliver
var ErrDeliveryFailed = errors.New("notify: no delivery channel succeeded")

// VideoSource is the slice of the video store the gateway needs: the
// pending list and the scalar meta entries it keeps its markers in.
type VideoSource interface {
	PendingToday() []models.ReminderItem
	GetMeta(key string) (string, bool, error)
	PutMeta(key, value string) error
	DeleteMeta(key string) error
}

// RegistryClient talks to the remote subscription registry
type RegistryClient interface {
	Subscribe(subscriptionJSON, timezone, hhmm string) error
	UpdateSettings(endpoint, timezone, hhmm string) error
	Unsubscribe(endpoint string) error
}

// Gateway decides, at most once per calendar day, whether to emit a
// reminder and through which channel. The dedup marker is written only
// after a real delivery, so an early no-op check can never silently eat
// the day's reminder.
type Gateway struct {
	mu       sync.Mutex
	source   VideoSource
	channels []Channel
	registry RegistryClient // nil when the remote registry is not configured
	log      zerolog.Logger

	settings   models.NotificationSettings
	permission Permission
	state      State
	stateDay   string
	timezone   string
	chatID     int64 // push identity; 0 means no remote registration

	timer  *time.Timer
	closed bool

	now func() time.Time
}

// NewGateway builds the gateway and restores its persisted settings and
// permission state. Malformed persisted entries fall back to defaults.
func NewGateway(source VideoSource, channels []Channel, registry RegistryClient, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		source:     source,
		channels:   channels,
		registry:   registry,
		log:        logger,
		settings:   models.DefaultNotificationSettings(),
		permission: PermissionDefault,
		timezone:   "UTC",
		now:        time.Now,
	}

	if raw, ok, err := source.GetMeta(metaSettings); err == nil && ok {
		var s models.NotificationSettings
		if jerr := json.Unmarshal([]byte(raw), &s); jerr == nil {
			g.settings = s
		} else {
			logger.Warn().Err(jerr).Msg("stored notification settings are malformed, using defaults")
		}
	}
	if p, ok, err := source.GetMeta(metaPermission); err == nil && ok {
		switch Permission(p) {
		case PermissionGranted, PermissionDenied:
			g.permission = Permission(p)
		}
	}
	return g
}

// SetTimezone records the IANA timezone reported to the subscription
// registry
func (g *Gateway) SetTimezone(tz string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tz != "" {
		g.timezone = tz
	}
}

// SetTelegramTarget records the chat this installation is reachable at.
// The chat is the push identity registered with the remote registry;
// without one the gateway keeps reminders local and never registers.
func (g *Gateway) SetTelegramTarget(chatID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatID = chatID
}

// Settings returns the current notification settings
func (g *Gateway) Settings() models.NotificationSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settings
}

// Permission returns the current permission state
func (g *Gateway) Permission() Permission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.permission
}

// State returns the current per-day delivery state
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// RequestPermission records the user's answer to the permission prompt.
// A denial leaves the gateway idle until the user asks again; a grant
// confirms with a notification, registers the push subscription and arms
// the daily timer.
func (g *Gateway) RequestPermission(granted bool) bool {
	g.mu.Lock()
	if !granted {
		g.permission = PermissionDenied
		g.persistPermission()
		g.mu.Unlock()
		return false
	}
	g.permission = PermissionGranted
	g.persistPermission()
	hhmm := g.settings.Time
	g.mu.Unlock()

	g.deliver(Notification{
		Title: "Notifications enabled",
		Body:  fmt.Sprintf("You'll receive reminders at %s when you have videos to review.", hhmm),
	})
	g.syncSubscription()
	g.ScheduleNext()
	return true
}

func (g *Gateway) persistPermission() {
	if err := g.source.PutMeta(metaPermission, string(g.permission)); err != nil {
		g.log.Warn().Err(err).Msg("failed to persist permission state")
	}
}

// SaveSettings persists new settings, re-arms the daily timer and pushes
// the change to the subscription registry. A failed remote update is only
// logged; it is retried passively on the next save.
func (g *Gateway) SaveSettings(s models.NotificationSettings) error {
	buf, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("notify: marshal settings: %w", err)
	}

	g.mu.Lock()
	g.settings = s
	g.mu.Unlock()

	if err := g.source.PutMeta(metaSettings, string(buf)); err != nil {
		return err
	}
	g.syncSubscription()
	g.ScheduleNext()
	return nil
}

// syncSubscription registers or updates this installation with the remote
// registry. Best-effort: failures are logged and retried on the next
// settings save or permission check.
func (g *Gateway) syncSubscription() {
	g.mu.Lock()
	registry := g.registry
	enabled := g.settings.Enabled && g.permission == PermissionGranted
	tz := g.timezone
	hhmm := g.settings.Time
	chatID := g.chatID
	g.mu.Unlock()

	if registry == nil || !enabled {
		return
	}
	if chatID == 0 {
		// Без доставляемого адреса регистрация бессмысленна; локальных
		// каналов достаточно
		return
	}

	endpoint, ok, err := g.source.GetMeta(metaPushEndpoint)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to read push endpoint")
		return
	}

	if !ok || endpoint == "" {
		endpoint = fmt.Sprintf("telegram:%d", chatID)
		sub, _ := json.Marshal(map[string]any{"endpoint": endpoint, "chat_id": chatID})
		if err := registry.Subscribe(string(sub), tz, hhmm); err != nil {
			g.log.Warn().Err(err).Msg("push subscription registration failed, will retry on next settings save")
			return
		}
		if err := g.source.PutMeta(metaPushEndpoint, endpoint); err != nil {
			g.log.Warn().Err(err).Msg("failed to persist push endpoint")
		}
		return
	}

	if err := registry.UpdateSettings(endpoint, tz, hhmm); err != nil {
		g.log.Warn().Err(err).Msg("push settings update failed, will retry on next settings save")
	}
}

// Unsubscribe cancels the push subscription. Local cleanup proceeds even
// when the remote call fails.
func (g *Gateway) Unsubscribe() {
	endpoint, ok, err := g.source.GetMeta(metaPushEndpoint)
	if err != nil || !ok || endpoint == "" {
		return
	}

	g.mu.Lock()
	registry := g.registry
	g.mu.Unlock()

	if registry != nil {
		if err := registry.Unsubscribe(endpoint); err != nil {
			g.log.Warn().Err(err).Str("endpoint", endpoint).Msg("remote unsubscribe failed, removing local endpoint anyway")
		}
	}
	if err := g.source.DeleteMeta(metaPushEndpoint); err != nil {
		g.log.Warn().Err(err).Msg("failed to delete push endpoint")
	}
}

// Evaluate runs one due-check at the given instant. No-ops when already
// notified today; otherwise computes the pending list and walks the channel
// chain. The dedup marker is written only after a successful delivery.
func (g *Gateway) Evaluate(now time.Time) {
	g.mu.Lock()

	if g.permission != PermissionGranted || !g.settings.Enabled {
		g.state = StateIdle
		g.mu.Unlock()
		return
	}

	// Сброс состояния в полночь: новый день — новый цикл
	today := now.Format(dayFormat)
	if g.stateDay != today {
		g.state = StateIdle
		g.stateDay = today
	}
	g.state = StatePendingCheck
	g.mu.Unlock()

	if marker, ok, err := g.source.GetMeta(metaLastNotified); err == nil && ok && marker == today {
		g.setState(StateNotified)
		return
	}

	pending := g.source.PendingToday()
	if len(pending) == 0 {
		g.setState(StateSuppressed)
		return
	}

	n := buildNotification(pending)
	if g.deliver(n) {
		if err := g.source.PutMeta(metaLastNotified, today); err != nil {
			g.log.Warn().Err(err).Msg("failed to persist dedup marker")
		}
		g.setState(StateNotified)
		return
	}
	// Every channel failed; stay in PendingCheck so the heartbeat retries
	g.log.Warn().Int("pending", len(pending)).Msg("all delivery channels failed")
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// deliver walks the channel chain, first success wins
func (g *Gateway) deliver(n Notification) bool {
	g.mu.Lock()
	channels := g.channels
	g.mu.Unlock()

	for _, ch := range channels {
		if !ch.Available() {
			continue
		}
		if err := ch.Deliver(n); err != nil {
			g.log.Warn().Err(err).Str("channel", ch.Name()).Msg("delivery failed, trying next channel")
			continue
		}
		g.log.Info().Str("channel", ch.Name()).Int("count", n.Count).Msg("reminder delivered")
		return true
	}
	return false
}

// buildNotification formats the payload: a count in the title and up to
// three item titles in the body, with an overflow suffix
func buildNotification(pending []models.ReminderItem) Notification {
	plural := "s"
	if len(pending) == 1 {
		plural = ""
	}

	var lines []string
	for i, item := range pending {
		if i == 3 {
			break
		}
		lines = append(lines, "• "+item.Video.Title)
	}
	body := strings.Join(lines, "\n")
	if len(pending) > 3 {
		body += fmt.Sprintf("\n... and %d more", len(pending)-3)
	}

	return Notification{
		Title: fmt.Sprintf("%d video%s to review today", len(pending), plural),
		Body:  body,
		Count: len(pending),
	}
}

// Heartbeat is the low-frequency defensive re-check, wired to the shared
// job scheduler. It covers missed one-shot wakeups and clock drift.
func (g *Gateway) Heartbeat() {
	g.Evaluate(g.now())
}

// ScheduleNext arms the precise one-shot timer for the next occurrence of
// the preferred time of day; if that time already passed today, it targets
// tomorrow
func (g *Gateway) ScheduleNext() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.permission != PermissionGranted || !g.settings.Enabled {
		return
	}

	at, err := time.Parse("15:04", g.settings.Time)
	if err != nil {
		g.log.Warn().Err(err).Str("time", g.settings.Time).Msg("invalid notification time, timer not armed")
		return
	}

	now := g.now()
	target := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}

	g.timer = time.AfterFunc(target.Sub(now), func() {
		g.Evaluate(g.now())
		g.ScheduleNext()
	})
	g.log.Debug().Time("at", target).Msg("daily reminder timer armed")
}

// TestNotification delivers a test message immediately. A failure surfaces
// as a single explanatory error instead of being swallowed.
func (g *Gateway) TestNotification() error {
	g.mu.Lock()
	if g.permission != PermissionGranted {
		g.mu.Unlock()
		return fmt.Errorf("notify: test notification: permission is %q, not granted", g.permission)
	}
	hhmm := g.settings.Time
	g.mu.Unlock()

	ok := g.deliver(Notification{
		Title: "Test notification",
		Body:  fmt.Sprintf("Notifications are working. You'll be reminded at %s when you have videos to review.", hhmm),
	})
	if !ok {
		return ErrDeliveryFailed
	}
	return nil
}

// Close tears the gateway down and clears all pending timers
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
