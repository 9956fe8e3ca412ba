package syncagent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rewatch/internal/schedule"
	"github.com/example/rewatch/pkg/models"
)

type fakeDisplay struct {
	titles []string
	bodies []string
}

func (d *fakeDisplay) Display(title, body string) error {
	d.titles = append(d.titles, title)
	d.bodies = append(d.bodies, body)
	return nil
}

type fakePages struct {
	open      bool
	delegated []string
	focused   int
}

func (p *fakePages) Open() bool { return p.open }
func (p *fakePages) Delegate(msg string) error {
	p.delegated = append(p.delegated, msg)
	return nil
}
func (p *fakePages) Focus() error {
	p.focused++
	return nil
}

func newTestAgent(t *testing.T, display *fakeDisplay, pages *fakePages) *Agent {
	t.Helper()
	return New(display, pages, t.TempDir(), "v1", zerolog.Nop())
}

func dueVideo(t *testing.T, today time.Time) models.Video {
	t.Helper()
	added := today.AddDate(0, 0, -1) // day-2 checkpoint lands on today
	return models.Video{
		ID:        "v1",
		Title:     "Cached talk",
		DateAdded: added,
		Reminders: schedule.BuildCheckpoints(added),
		IsActive:  true,
	}
}

func TestCacheVideosReplacesSnapshot(t *testing.T) {
	agent := newTestAgent(t, &fakeDisplay{}, &fakePages{})

	agent.handle(CacheVideos{Videos: []models.Video{{ID: "a"}, {ID: "b"}}})
	assert.Len(t, agent.Snapshot(), 2)

	agent.handle(CacheVideos{Videos: []models.Video{{ID: "c"}}})
	snapshot := agent.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "c", snapshot[0].ID)
}

func TestCheckRemindersUsesStaleSnapshot(t *testing.T) {
	display := &fakeDisplay{}
	agent := newTestAgent(t, display, &fakePages{open: false})

	today := time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local)
	agent.now = func() time.Time { return today }

	agent.handle(CacheVideos{Videos: []models.Video{dueVideo(t, today)}})
	agent.handle(CheckReminders{})

	require.Len(t, display.bodies, 1)
	assert.Equal(t, "You have 1 video to review today!", display.bodies[0])
}

func TestCheckRemindersNothingPending(t *testing.T) {
	display := &fakeDisplay{}
	agent := newTestAgent(t, display, &fakePages{open: false})

	agent.handle(CheckReminders{})
	assert.Empty(t, display.titles)
}

func TestCheckRemindersDelegatesToOpenPage(t *testing.T) {
	display := &fakeDisplay{}
	pages := &fakePages{open: true}
	agent := newTestAgent(t, display, pages)

	today := time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local)
	agent.now = func() time.Time { return today }
	agent.handle(CacheVideos{Videos: []models.Video{dueVideo(t, today)}})

	agent.handle(CheckReminders{})

	// An open page has fresher data: delegate, do not act on stale cache
	assert.Empty(t, display.titles)
	assert.Equal(t, []string{"check-reminders"}, pages.delegated)
}

func TestPushReceived(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		wantTitle string
		wantBody  string
	}{
		{
			name:      "json payload",
			payload:   []byte(`{"title":"Custom","body":"Custom body"}`),
			wantTitle: "Custom",
			wantBody:  "Custom body",
		},
		{
			name:      "partial json falls back per field",
			payload:   []byte(`{"body":"Only body"}`),
			wantTitle: defaultPushTitle,
			wantBody:  "Only body",
		},
		{
			name:      "raw text payload",
			payload:   []byte("plain words"),
			wantTitle: defaultPushTitle,
			wantBody:  "plain words",
		},
		{
			name:      "empty payload uses defaults",
			payload:   nil,
			wantTitle: defaultPushTitle,
			wantBody:  defaultPushBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			display := &fakeDisplay{}
			agent := newTestAgent(t, display, &fakePages{})

			agent.handle(PushReceived{Payload: tt.payload})

			require.Len(t, display.titles, 1)
			assert.Equal(t, tt.wantTitle, display.titles[0])
			assert.Equal(t, tt.wantBody, display.bodies[0])
		})
	}
}

func TestNotificationClick(t *testing.T) {
	pages := &fakePages{open: true}
	agent := newTestAgent(t, &fakeDisplay{}, pages)

	agent.handle(NotificationClick{Action: "open"})
	assert.Equal(t, 1, pages.focused)

	agent.handle(NotificationClick{Action: "dismiss"})
	assert.Equal(t, 1, pages.focused, "dismiss must not navigate")
}

func TestSnapshotPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	agent := New(&fakeDisplay{}, &fakePages{}, dir, "v1", zerolog.Nop())

	agent.handle(CacheVideos{Videos: []models.Video{{ID: "persisted"}}})

	// A fresh agent (post-restart) restores the stale snapshot on activation
	restarted := New(&fakeDisplay{}, &fakePages{}, dir, "v1", zerolog.Nop())
	restarted.activate()

	snapshot := restarted.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "persisted", snapshot[0].ID)
}

func TestActivationEvictsStaleCaches(t *testing.T) {
	dir := t.TempDir()

	old, err := json.Marshal([]models.Video{{ID: "old"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot-v0.json"), old, 0o644))

	agent := New(&fakeDisplay{}, &fakePages{}, dir, "v1", zerolog.Nop())
	agent.activate()

	_, err = os.Stat(filepath.Join(dir, "snapshot-v0.json"))
	assert.True(t, os.IsNotExist(err), "previous-version cache must be evicted")
}

func TestMailboxDropsWhenFull(t *testing.T) {
	agent := newTestAgent(t, &fakeDisplay{}, &fakePages{})

	for i := 0; i < cap(agent.mailbox); i++ {
		require.NoError(t, agent.Send(CheckReminders{}))
	}
	assert.Error(t, agent.Send(CheckReminders{}))
}
