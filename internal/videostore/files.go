package videostore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// ErrFileNotFound is returned when no file content is stored for a video
var ErrFileNotFound = errors.New("videostore: video file not found")

// ErrFilesUnavailable is returned for file operations in a degraded session;
// large binary content has no in-memory fallback
var ErrFilesUnavailable = errors.New("videostore: file storage unavailable")

// VideoFile is the stored envelope for uploaded binary content, kept in a
// separate keyspace from the video metadata
type VideoFile struct {
	VideoID  string `json:"videoId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
	Data     []byte `json:"data"`
}

// SaveVideoFile stores uploaded content for a video
func (s *Store) SaveVideoFile(videoID, fileName, fileType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrFilesUnavailable
	}

	envelope := VideoFile{
		VideoID:  videoID,
		FileName: fileName,
		FileType: fileType,
		Size:     int64(len(data)),
		Data:     data,
	}
	buf, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("videostore: marshal file envelope: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fileKeyPrefix+videoID), buf)
	})
	if err != nil {
		return fmt.Errorf("videostore: save file for %s: %w", videoID, err)
	}
	return nil
}

// GetVideoFile loads stored content for a video
func (s *Store) GetVideoFile(videoID string) (*VideoFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrFilesUnavailable
	}

	var envelope VideoFile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fileKeyPrefix + videoID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &envelope)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("videostore: get file for %s: %w", videoID, err)
	}
	return &envelope, nil
}

// DeleteVideoFile removes stored content for a video. Deleting a missing
// file is not an error.
func (s *Store) DeleteVideoFile(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteFileLocked(videoID)
}

func (s *Store) deleteFileLocked(videoID string) error {
	if s.db == nil {
		return ErrFilesUnavailable
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(fileKeyPrefix + videoID))
	})
	if err != nil {
		return fmt.Errorf("videostore: delete file for %s: %w", videoID, err)
	}
	return nil
}
