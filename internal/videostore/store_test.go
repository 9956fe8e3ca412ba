package videostore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rewatch/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddVideo(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "Go Concurrency Talk", URL: "https://example.com/talk"})
	require.NoError(t, err)

	assert.NotEmpty(t, v.ID)
	assert.False(t, v.DateAdded.IsZero())
	assert.True(t, v.IsActive)
	require.Len(t, v.Reminders, 5)
	assert.True(t, v.Reminders[0].Completed)
	assert.False(t, v.Reminders[4].Completed)
}

func TestAddVideoRequiresTitle(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AddVideo(VideoInput{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrTitleRequired)
}

func TestAddVideoNewestFirst(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AddVideo(VideoInput{Title: "first"})
	require.NoError(t, err)
	_, err = s.AddVideo(VideoInput{Title: "second"})
	require.NoError(t, err)

	videos := s.Snapshot()
	require.Len(t, videos, 2)
	assert.Equal(t, "second", videos[0].Title)
}

func TestToggleCheckpoint(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "toggle"})
	require.NoError(t, err)

	completed, err := s.ToggleCheckpoint(v.ID, 1)
	require.NoError(t, err)
	assert.True(t, completed)

	completed, err = s.ToggleCheckpoint(v.ID, 1)
	require.NoError(t, err)
	assert.False(t, completed)

	_, err = s.ToggleCheckpoint("nope", 1)
	assert.ErrorIs(t, err, ErrVideoNotFound)

	_, err = s.ToggleCheckpoint(v.ID, 9)
	assert.ErrorIs(t, err, ErrCheckpointIndex)
}

func TestUncompleteDay42ResetsMonthlyDecision(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "day42"})
	require.NoError(t, err)

	_, err = s.ToggleCheckpoint(v.ID, 4)
	require.NoError(t, err)
	require.NoError(t, s.SetMonthlyDecision(v.ID, true))

	got := s.Snapshot()[0]
	require.NotNil(t, got.RepeatMonthly)

	// Снимаем отметку с 42-го дня — решение сбрасывается
	_, err = s.ToggleCheckpoint(v.ID, 4)
	require.NoError(t, err)

	got = s.Snapshot()[0]
	assert.Nil(t, got.RepeatMonthly)
	assert.True(t, got.IsActive)

	// Doing it again (complete, then un-complete) yields the same state
	_, err = s.ToggleCheckpoint(v.ID, 4)
	require.NoError(t, err)
	_, err = s.ToggleCheckpoint(v.ID, 4)
	require.NoError(t, err)

	got = s.Snapshot()[0]
	assert.Nil(t, got.RepeatMonthly)
	assert.True(t, got.IsActive)
}

func TestMonthlyCheckpointAdvances(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "monthly"})
	require.NoError(t, err)
	require.NoError(t, s.SetMonthlyDecision(v.ID, true))

	later := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	s.now = func() time.Time { return later }

	completed, err := s.ToggleCheckpoint(v.ID, -1)
	require.NoError(t, err)
	// Monthly checkpoints only advance, they never un-complete
	assert.True(t, completed)

	got := s.Snapshot()[0]
	require.NotNil(t, got.RepeatMonthly)
	assert.True(t, got.RepeatMonthly.LastDate.Equal(later))

	// Без месячного повторения индекс -1 недопустим
	v2, err := s.AddVideo(VideoInput{Title: "plain"})
	require.NoError(t, err)
	_, err = s.ToggleCheckpoint(v2.ID, -1)
	assert.ErrorIs(t, err, ErrNoMonthlyRepeat)
}

func TestSetMonthlyDecisionIdempotent(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "decision"})
	require.NoError(t, err)

	require.NoError(t, s.SetMonthlyDecision(v.ID, true))
	first := s.Snapshot()[0]
	require.NotNil(t, first.RepeatMonthly)
	start := first.RepeatMonthly.StartDate

	// Repeating the same decision keeps the original start date
	require.NoError(t, s.SetMonthlyDecision(v.ID, true))
	second := s.Snapshot()[0]
	require.NotNil(t, second.RepeatMonthly)
	assert.True(t, second.RepeatMonthly.StartDate.Equal(start))

	require.NoError(t, s.SetMonthlyDecision(v.ID, false))
	require.NoError(t, s.SetMonthlyDecision(v.ID, false))
	third := s.Snapshot()[0]
	assert.Nil(t, third.RepeatMonthly)
	assert.False(t, third.IsActive)
}

func TestDeleteVideoToleratesMissingFile(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "with file", IsFileUpload: true, HasFile: true})
	require.NoError(t, err)

	// No file content was ever stored; deletion must still succeed
	require.NoError(t, s.DeleteVideo(v.ID))
	assert.Empty(t, s.Snapshot())

	assert.ErrorIs(t, s.DeleteVideo(v.ID), ErrVideoNotFound)
}

func TestVideoFileRoundtrip(t *testing.T) {
	s := openTestStore(t)

	v, err := s.AddVideo(VideoInput{Title: "upload", IsFileUpload: true, HasFile: true})
	require.NoError(t, err)

	data := []byte("fake video bytes")
	require.NoError(t, s.SaveVideoFile(v.ID, "talk.mp4", "video/mp4", data))

	file, err := s.GetVideoFile(v.ID)
	require.NoError(t, err)
	assert.Equal(t, "talk.mp4", file.FileName)
	assert.Equal(t, int64(len(data)), file.Size)
	assert.Equal(t, data, file.Data)

	require.NoError(t, s.DeleteVideo(v.ID))
	_, err = s.GetVideoFile(v.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	v, err := s.AddVideo(VideoInput{Title: "durable"})
	require.NoError(t, err)
	_, err = s.ToggleCheckpoint(v.ID, 2)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	videos := s2.Snapshot()
	require.Len(t, videos, 1)
	assert.Equal(t, "durable", videos[0].Title)
	assert.True(t, videos[0].Reminders[2].Completed)
}

func TestLegacySnapshotMigration(t *testing.T) {
	dir := t.TempDir()

	legacy := []models.Video{{
		ID:        "legacy-1",
		Title:     "From the old days",
		DateAdded: time.Date(2023, 11, 1, 10, 0, 0, 0, time.Local),
		IsActive:  true,
	}}
	buf, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFileName), buf, 0o644))

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	videos := s.Snapshot()
	require.Len(t, videos, 1)
	assert.Equal(t, "legacy-1", videos[0].ID)
}

func TestLegacyMigrationSortsNewestFirst(t *testing.T) {
	dir := t.TempDir()

	// Snapshot file holds oldest-first; the loaded collection must not
	legacy := []models.Video{
		{ID: "older", Title: "older", DateAdded: time.Date(2023, 10, 1, 10, 0, 0, 0, time.Local), IsActive: true},
		{ID: "newer", Title: "newer", DateAdded: time.Date(2023, 12, 1, 10, 0, 0, 0, time.Local), IsActive: true},
	}
	buf, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFileName), buf, 0o644))

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	videos := s.Snapshot()
	require.Len(t, videos, 2)
	assert.Equal(t, "newer", videos[0].ID)
	assert.Equal(t, "older", videos[1].ID)
}

func TestDegradedSessionRunsOnLegacySnapshot(t *testing.T) {
	dir := t.TempDir()
	s := &Store{
		dataDir:  dir,
		meta:     make(map[string]string),
		log:      zerolog.Nop(),
		degraded: true,
		now:      time.Now,
	}

	assert.True(t, s.Degraded())

	// Mutations keep working and land in the flat snapshot
	v, err := s.AddVideo(VideoInput{Title: "no durable store"})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, legacyFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "no durable store")

	// Scalar meta falls back to memory
	require.NoError(t, s.PutMeta("lastNotifiedDate", "2024-01-02"))
	got, ok, err := s.GetMeta("lastNotifiedDate")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-02", got)

	// Binary content has no fallback
	assert.ErrorIs(t, s.SaveVideoFile(v.ID, "talk.mp4", "video/mp4", []byte("x")), ErrFilesUnavailable)
}

func TestMalformedLegacySnapshotDefaultsToEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFileName), []byte("{not json"), 0o644))

	s, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Snapshot())
}

func TestProjections(t *testing.T) {
	s := openTestStore(t)

	added := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	_, err := s.AddVideo(VideoInput{Title: "projected", DateAdded: added})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2024, 1, 2, 8, 0, 0, 0, time.Local) }

	today := s.TodaysReminders()
	require.Len(t, today, 1)
	assert.Equal(t, 2, today[0].Current.Day)

	pending := s.PendingToday()
	require.Len(t, pending, 1)

	upcoming := s.UpcomingReminders()
	assert.Len(t, upcoming, 3) // days 5, 12, 42

	// Day 1 is pre-completed, nothing overdue yet
	assert.Empty(t, s.PastReminders())
}

func TestExportImportRoundtrip(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AddVideo(VideoInput{Title: "exported"})
	require.NoError(t, err)

	data, err := s.ExportJSON()
	require.NoError(t, err)

	s2 := openTestStore(t)
	require.NoError(t, s2.ImportJSON(data))

	videos := s2.Snapshot()
	require.Len(t, videos, 1)
	assert.Equal(t, "exported", videos[0].Title)

	assert.Error(t, s2.ImportJSON([]byte("not json")))
}

func TestMetaRoundtrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetMeta("lastNotifiedDate")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutMeta("lastNotifiedDate", "2024-01-02"))

	v, ok, err := s.GetMeta("lastNotifiedDate")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-02", v)

	require.NoError(t, s.DeleteMeta("lastNotifiedDate"))
	_, ok, err = s.GetMeta("lastNotifiedDate")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AddVideo(VideoInput{Title: "one"})
	require.NoError(t, err)
	_, err = s.AddVideo(VideoInput{Title: "two"})
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())
	assert.Empty(t, s.Snapshot())
}
