package syncagent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/rewatch/internal/schedule"
	"github.com/example/rewatch/pkg/models"
)

// Message is the tagged union carried by the agent's mailbox. The page and
// the agent share no memory; everything crosses this boundary as a typed
// message.
type Message interface{ isMessage() }

// CheckReminders requests an immediate due-check (a host wake event or an
// explicit page request)
type CheckReminders struct{}

// CacheVideos replaces the agent's private snapshot of the video collection
type CacheVideos struct {
	Videos []models.Video
}

// PushReceived carries a raw push payload delivered by the remote service
type PushReceived struct {
	Payload []byte
}

// NotificationClick reports a user interaction with a displayed
// notification
type NotificationClick struct {
	Action string // "open" focuses the app, "dismiss" just closes
}

func (CheckReminders) isMessage()    {}
func (CacheVideos) isMessage()       {}
func (PushReceived) isMessage()      {}
func (NotificationClick) isMessage() {}

// Displayer shows a notification outside the page context
type Displayer interface {
	Display(title, body string) error
}

// Pages is the agent's view of open app pages. When a page is open it has
// fresher data than the agent's snapshot, so the agent delegates instead
// of acting on stale state.
type Pages interface {
	Open() bool
	// Delegate asks an open page to run the check itself
	Delegate(msg string) error
	// Focus brings an open page to the front, or opens a new one
	Focus() error
}

const (
	// defaultPushTitle and defaultPushBody are used when a push payload is
	// absent or unparsable
	defaultPushTitle = "Rewatch Reminder"
	defaultPushBody  = "You have videos to review today!"

	snapshotPrefix = "snapshot-"

	// delegateCheckMsg is the agent-to-page delegation request
	delegateCheckMsg = "check-reminders"
)

// Agent is the background execution context: it wakes independently of any
// open page, re-derives what's due from its cached snapshot and fires
// notifications when nobody else can. All handler failures are logged and
// never escape a wake event.
type Agent struct {
	mu       sync.Mutex
	videos   []models.Video
	savedAt  time.Time
	mailbox  chan Message
	display  Displayer
	pages    Pages
	cacheDir string
	version  string
	log      zerolog.Logger

	now func() time.Time
}

// New creates the agent. cacheDir holds the persisted snapshot so a wake
// after a restart still has (stale) data to act on; version tags the
// snapshot file for eviction on activation.
func New(display Displayer, pages Pages, cacheDir, version string, logger zerolog.Logger) *Agent {
	return &Agent{
		mailbox:  make(chan Message, 16),
		display:  display,
		pages:    pages,
		cacheDir: cacheDir,
		version:  version,
		log:      logger,
		now:      time.Now,
	}
}

// Send enqueues a message. The mailbox is buffered; a full mailbox drops
// the message with a log entry rather than blocking the sender.
func (a *Agent) Send(msg Message) error {
	select {
	case a.mailbox <- msg:
		return nil
	default:
		a.log.Warn().Type("message", msg).Msg("mailbox full, dropping message")
		return fmt.Errorf("syncagent: mailbox full")
	}
}

// Run activates the agent and processes the mailbox until the context is
// cancelled
func (a *Agent) Run(ctx context.Context) {
	a.activate()

	for {
		select {
		case msg := <-a.mailbox:
			a.handle(msg)
		case <-ctx.Done():
			a.log.Info().Msg("background agent stopping")
			return
		}
	}
}

// activate restores the persisted snapshot and evicts cached versions not
// matching the current version tag
func (a *Agent) activate() {
	if a.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(a.cacheDir, 0o755); err != nil {
		a.log.Warn().Err(err).Msg("cache directory unavailable, snapshots will not persist")
	}
	if err := a.loadSnapshot(); err != nil {
		a.log.Warn().Err(err).Msg("no usable cached snapshot")
	}
	a.evictStaleCaches()
}

func (a *Agent) snapshotPath() string {
	return filepath.Join(a.cacheDir, snapshotPrefix+a.version+".json")
}

func (a *Agent) loadSnapshot() error {
	data, err := os.ReadFile(a.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var videos []models.Video
	if err := json.Unmarshal(data, &videos); err != nil {
		// Malformed cache is treated as empty, never fatal
		return fmt.Errorf("syncagent: malformed snapshot: %w", err)
	}
	a.mu.Lock()
	a.videos = videos
	a.mu.Unlock()
	a.log.Info().Int("count", len(videos)).Msg("restored cached video snapshot")
	return nil
}

// evictStaleCaches removes snapshot files from previous versions
func (a *Agent) evictStaleCaches() {
	entries, err := os.ReadDir(a.cacheDir)
	if err != nil {
		return
	}
	current := snapshotPrefix + a.version + ".json"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, snapshotPrefix) || name == current {
			continue
		}
		if err := os.Remove(filepath.Join(a.cacheDir, name)); err != nil {
			a.log.Warn().Err(err).Str("cache", name).Msg("failed to evict stale cache")
		} else {
			a.log.Info().Str("cache", name).Msg("evicted stale cache")
		}
	}
}

// handle dispatches one message. Panics and errors stay inside the wake.
func (a *Agent) handle(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().Interface("panic", r).Msg("recovered in message handler")
		}
	}()

	switch m := msg.(type) {
	case CheckReminders:
		a.checkAndNotify()
	case CacheVideos:
		a.cacheVideos(m.Videos)
	case PushReceived:
		a.showPush(m.Payload)
	case NotificationClick:
		a.handleClick(m.Action)
	default:
		a.log.Warn().Type("message", msg).Msg("unknown message type")
	}
}

// checkAndNotify re-derives what's due from the cached snapshot. An open
// page has fresher data, so the check is delegated to it when one exists.
func (a *Agent) checkAndNotify() {
	if a.pages != nil && a.pages.Open() {
		if err := a.pages.Delegate(delegateCheckMsg); err != nil {
			a.log.Warn().Err(err).Msg("delegation to open page failed")
		}
		return
	}

	a.mu.Lock()
	videos := a.videos
	a.mu.Unlock()

	pending := schedule.PendingToday(videos, a.now())
	if len(pending) == 0 {
		return
	}

	plural := "s"
	if len(pending) == 1 {
		plural = ""
	}
	body := fmt.Sprintf("You have %d video%s to review today!", len(pending), plural)
	if err := a.display.Display(defaultPushTitle, body); err != nil {
		a.log.Warn().Err(err).Msg("background notification failed")
	}
}

func (a *Agent) cacheVideos(videos []models.Video) {
	a.mu.Lock()
	a.videos = videos
	a.savedAt = a.now()
	a.mu.Unlock()

	if a.cacheDir == "" {
		return
	}
	buf, err := json.Marshal(videos)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to marshal snapshot")
		return
	}
	if err := os.WriteFile(a.snapshotPath(), buf, 0o644); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist snapshot")
	}
}

// showPush displays a remote push payload directly: the remote dispatcher
// already decided it's due, no local computation happens here
func (a *Agent) showPush(payload []byte) {
	msg := models.PushMessage{Title: defaultPushTitle, Body: defaultPushBody}
	if len(payload) > 0 {
		var parsed models.PushMessage
		if err := json.Unmarshal(payload, &parsed); err == nil {
			if parsed.Title != "" {
				msg.Title = parsed.Title
			}
			if parsed.Body != "" {
				msg.Body = parsed.Body
			}
		} else {
			// Не-JSON полезная нагрузка показывается как есть
			msg.Body = string(payload)
		}
	}
	if err := a.display.Display(msg.Title, msg.Body); err != nil {
		a.log.Warn().Err(err).Msg("push notification display failed")
	}
}

func (a *Agent) handleClick(action string) {
	switch action {
	case "dismiss":
		// Closes without navigating
	default:
		if a.pages == nil {
			return
		}
		if err := a.pages.Focus(); err != nil {
			a.log.Warn().Err(err).Msg("failed to focus app page")
		}
	}
}

// Snapshot returns the agent's current cached collection, for inspection
func (a *Agent) Snapshot() []models.Video {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Video, len(a.videos))
	copy(out, a.videos)
	return out
}
