package videostore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/rewatch/internal/schedule"
	"github.com/example/rewatch/pkg/models"
)

const (
	videoKeyPrefix = "video:"
	fileKeyPrefix  = "file:"
	metaKeyPrefix  = "meta:"

	// legacyFileName is the flat snapshot kept for installations that
	// predate the object store
	legacyFileName = "videos.json"
)

var (
	// ErrTitleRequired is returned by AddVideo when the title is missing
	ErrTitleRequired = errors.New("videostore: title is required")
	// ErrVideoNotFound is returned when the video id is unknown
	ErrVideoNotFound = errors.New("videostore: video not found")
	// ErrNoMonthlyRepeat is returned when the monthly checkpoint is toggled
	// on a video without a monthly recurrence
	ErrNoMonthlyRepeat = errors.New("videostore: video has no monthly repeat")
	// ErrCheckpointIndex is returned on an out-of-range checkpoint index
	ErrCheckpointIndex = errors.New("videostore: checkpoint index out of range")
)

// VideoInput carries user-supplied data for a new video. Missing id and
// dateAdded are assigned at creation.
type VideoInput struct {
	ID        string
	Title     string
	URL       string
	Notes     string
	DateAdded time.Time

	IsFileUpload bool
	FileName     string
	FileSize     int64
	FileType     string
	HasFile      bool
}

// Store owns the persisted video collection and its reminder state. Videos
// live in a Badger object store keyed by id; small scalar entries (settings,
// dedup markers) share the store under a meta prefix. When the store cannot
// be opened the session degrades to in-memory with a legacy flat-file
// snapshot, so a broken disk never takes the whole app down.
type Store struct {
	mu      sync.RWMutex
	db      *badger.DB
	videos  []models.Video
	meta    map[string]string // in-memory meta fallback for degraded sessions
	dataDir string
	log     zerolog.Logger

	degraded bool
	onChange func([]models.Video)

	now func() time.Time
}

// Open prepares the store under dataDir and loads the video collection.
// A non-nil Store is returned even when the durable store is unavailable;
// in that case the error describes the degradation and the session runs
// in-memory, seeded from the legacy snapshot if one exists.
func Open(dataDir string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		dataDir: dataDir,
		meta:    make(map[string]string),
		log:     logger,
		now:     time.Now,
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		s.degraded = true
		return s, fmt.Errorf("videostore: create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "videos")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		// Переходим в режим "только память" с загрузкой из старого снапшота
		s.degraded = true
		s.log.Error().Err(err).Msg("object store unavailable, falling back to legacy snapshot")
		if lerr := s.loadLegacy(); lerr != nil {
			s.log.Warn().Err(lerr).Msg("legacy snapshot unavailable, starting empty")
		}
		return s, fmt.Errorf("videostore: open object store: %w", err)
	}
	s.db = db

	if err := s.Load(); err != nil {
		return s, err
	}
	return s, nil
}

// Close releases the underlying store
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Degraded reports whether the session runs without durable storage
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// OnChange registers a callback invoked with a snapshot after every
// successful mutation. Used to push the collection into the background
// agent's cache.
func (s *Store) OnChange(fn func([]models.Video)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load populates the in-memory collection from the object store. An empty
// or missing store yields an empty collection, not an error. When the store
// holds nothing but a legacy snapshot exists, the snapshot is migrated in.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return s.loadLegacy()
	}

	var videos []models.Video
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(videoKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var v models.Video
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				// Битые записи пропускаем, не роняя загрузку
				s.log.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping malformed video record")
				continue
			}
			videos = append(videos, v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("videostore: load: %w", err)
	}

	if len(videos) == 0 {
		if migrated, err := s.migrateLegacy(); err == nil && migrated > 0 {
			s.log.Info().Int("count", migrated).Msg("migrated videos from legacy snapshot")
			videos = s.videos
		}
	}

	// Newest first, matching the order videos were added in
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].DateAdded.After(videos[j].DateAdded)
	})
	s.videos = videos
	s.log.Info().Int("count", len(videos)).Msg("loaded videos from storage")
	return nil
}

// loadLegacy reads the flat JSON snapshot. Caller holds the lock.
func (s *Store) loadLegacy() error {
	path := filepath.Join(s.dataDir, legacyFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.videos = nil
			return nil
		}
		return fmt.Errorf("videostore: read legacy snapshot: %w", err)
	}

	var videos []models.Video
	if err := json.Unmarshal(data, &videos); err != nil {
		// Malformed persisted state defaults to empty, never propagates
		s.log.Warn().Err(err).Msg("legacy snapshot is malformed, starting empty")
		s.videos = nil
		return nil
	}
	s.videos = videos
	return nil
}

// migrateLegacy pulls the legacy snapshot into the object store. Caller
// holds the lock. Returns the number of migrated videos.
func (s *Store) migrateLegacy() (int, error) {
	if err := s.loadLegacy(); err != nil {
		return 0, err
	}
	for i := range s.videos {
		if err := s.persistVideo(s.videos[i]); err != nil {
			return 0, err
		}
	}
	return len(s.videos), nil
}

// persistVideo writes one video durably. Caller holds the lock. Mutations
// call this before returning so nothing is lost on immediate exit.
func (s *Store) persistVideo(v models.Video) error {
	if s.db == nil {
		return s.writeLegacy()
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("videostore: marshal video: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(videoKeyPrefix+v.ID), buf)
	})
	if err != nil {
		return fmt.Errorf("videostore: persist video %s: %w", v.ID, err)
	}
	return nil
}

// writeLegacy rewrites the flat snapshot, used when the object store is
// down. Caller holds the lock.
func (s *Store) writeLegacy() error {
	buf, err := json.MarshalIndent(s.videos, "", "  ")
	if err != nil {
		return fmt.Errorf("videostore: marshal snapshot: %w", err)
	}
	path := filepath.Join(s.dataDir, legacyFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("videostore: write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// notifyChange hands a snapshot to the registered listener. Caller holds
// the lock; the callback runs without it.
func (s *Store) notifyChange() {
	if s.onChange == nil {
		return
	}
	snapshot := s.snapshotLocked()
	fn := s.onChange
	go fn(snapshot)
}

func (s *Store) snapshotLocked() []models.Video {
	out := make([]models.Video, len(s.videos))
	copy(out, s.videos)
	return out
}

// Snapshot returns a copy of the current collection
func (s *Store) Snapshot() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AddVideo validates and stores a new video with its computed review curve
func (s *Store) AddVideo(input VideoInput) (models.Video, error) {
	if input.Title == "" {
		return models.Video{}, ErrTitleRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	video := models.Video{
		ID:           input.ID,
		Title:        input.Title,
		URL:          input.URL,
		Notes:        input.Notes,
		IsFileUpload: input.IsFileUpload,
		FileName:     input.FileName,
		FileSize:     input.FileSize,
		FileType:     input.FileType,
		HasFile:      input.HasFile,
		DateAdded:    input.DateAdded,
		IsActive:     true,
	}
	if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.DateAdded.IsZero() {
		video.DateAdded = s.now()
	}
	video.Reminders = schedule.BuildCheckpoints(video.DateAdded)

	// Add to the front, newest first
	s.videos = append([]models.Video{video}, s.videos...)
	if err := s.persistVideo(video); err != nil {
		return video, err
	}
	s.notifyChange()
	return video, nil
}

// UpdateVideoFields changes only the title and/or notes of a video. Nil
// pointers leave the field untouched.
func (s *Store) UpdateVideoFields(videoID string, title, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(videoID)
	if idx < 0 {
		return ErrVideoNotFound
	}
	if title != nil {
		s.videos[idx].Title = *title
	}
	if notes != nil {
		s.videos[idx].Notes = *notes
	}
	if err := s.persistVideo(s.videos[idx]); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// ToggleCheckpoint flips the completed state of one checkpoint and returns
// the new state. Index -1 addresses the monthly recurrence: it advances
// lastDate to now and cannot be un-completed. Un-completing the day-42
// checkpoint resets the monthly decision and reactivates the video.
func (s *Store) ToggleCheckpoint(videoID string, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(videoID)
	if idx < 0 {
		return false, ErrVideoNotFound
	}
	video := &s.videos[idx]

	if index == schedule.MonthlyIndex {
		if video.RepeatMonthly == nil {
			return false, ErrNoMonthlyRepeat
		}
		video.RepeatMonthly.LastDate = s.now()
		if err := s.persistVideo(*video); err != nil {
			return false, err
		}
		s.notifyChange()
		return true, nil
	}

	if index < 0 || index >= len(video.Reminders) {
		return false, ErrCheckpointIndex
	}
	video.Reminders[index].Completed = !video.Reminders[index].Completed

	// Снятие отметки с 42-го дня отменяет решение о месячном повторении
	if video.Reminders[index].Day == 42 && !video.Reminders[index].Completed {
		video.RepeatMonthly = nil
		video.IsActive = true
	}

	if err := s.persistVideo(*video); err != nil {
		return false, err
	}
	s.notifyChange()
	return video.Reminders[index].Completed, nil
}

// SetMonthlyDecision records the user's choice at the day-42 checkpoint:
// continue with a monthly recurrence or finish the video. Idempotent.
func (s *Store) SetMonthlyDecision(videoID string, continueMonthly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(videoID)
	if idx < 0 {
		return ErrVideoNotFound
	}
	video := &s.videos[idx]

	if continueMonthly {
		if video.RepeatMonthly == nil {
			now := s.now()
			video.RepeatMonthly = &models.MonthlyRepeat{StartDate: now, LastDate: now}
		}
		video.IsActive = true
	} else {
		video.RepeatMonthly = nil
		video.IsActive = false
	}

	if err := s.persistVideo(*video); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// DeleteVideo removes a video and its stored file content. A failing file
// deletion is logged and does not block removing the metadata.
func (s *Store) DeleteVideo(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(videoID)
	if idx < 0 {
		return ErrVideoNotFound
	}
	video := s.videos[idx]

	if video.IsFileUpload || video.HasFile {
		if err := s.deleteFileLocked(videoID); err != nil {
			s.log.Warn().Err(err).Str("video_id", videoID).Msg("no video file to delete or delete failed")
		}
	}

	s.videos = append(s.videos[:idx], s.videos[idx+1:]...)

	if s.db != nil {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(videoKeyPrefix + videoID))
		})
		if err != nil {
			return fmt.Errorf("videostore: delete video %s: %w", videoID, err)
		}
	} else if err := s.writeLegacy(); err != nil {
		return err
	}
	s.notifyChange()
	return nil
}

// ClearAll removes every video
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.DropPrefix([]byte(videoKeyPrefix))
		if err != nil {
			return fmt.Errorf("videostore: clear: %w", err)
		}
	}
	s.videos = nil
	if s.db == nil {
		if err := s.writeLegacy(); err != nil {
			return err
		}
	}
	s.notifyChange()
	return nil
}

// ExportJSON serializes the whole collection
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.videos, "", "  ")
}

// ImportJSON replaces the collection with a previously exported one
func (s *Store) ImportJSON(data []byte) error {
	var videos []models.Video
	if err := json.Unmarshal(data, &videos); err != nil {
		return fmt.Errorf("videostore: import: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.videos = videos
	for i := range videos {
		if err := s.persistVideo(videos[i]); err != nil {
			return err
		}
	}
	s.notifyChange()
	return nil
}

// indexOf finds a video by id. Caller holds the lock.
func (s *Store) indexOf(videoID string) int {
	for i := range s.videos {
		if s.videos[i].ID == videoID {
			return i
		}
	}
	return -1
}

// TodaysReminders returns the display list for today: due checkpoints and
// monthly recurrences, incomplete entries first
func (s *Store) TodaysReminders() []models.ReminderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schedule.Sort(schedule.DueToday(s.videos, s.now()))
}

// PendingToday returns only the not-yet-completed reminders due today
func (s *Store) PendingToday() []models.ReminderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schedule.PendingToday(s.videos, s.now())
}

// UpcomingReminders returns checkpoints scheduled after today
func (s *Store) UpcomingReminders() []models.ReminderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schedule.Upcoming(s.videos, s.now())
}

// PastReminders returns incomplete checkpoints before today
func (s *Store) PastReminders() []models.ReminderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schedule.Overdue(s.videos, s.now())
}

// ActiveVideos returns videos still on the review curve
func (s *Store) ActiveVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.IsActive {
			out = append(out, v)
		}
	}
	return out
}

// CompletedVideos returns videos that finished the curve without a monthly
// repeat
func (s *Store) CompletedVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Video
	for _, v := range s.videos {
		if !v.IsActive && v.RepeatMonthly == nil {
			out = append(out, v)
		}
	}
	return out
}

// MonthlyVideos returns videos on monthly repeat
func (s *Store) MonthlyVideos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.RepeatMonthly != nil {
			out = append(out, v)
		}
	}
	return out
}
