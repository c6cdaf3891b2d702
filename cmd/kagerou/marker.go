// cmd/kagerou/marker.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerStore is the durable subject → SeenMarker mapping. Load on an unknown
// subject returns a null marker, never an error; only real I/O or corruption
// problems surface. Save must be atomic per subject: a crash mid-write may
// lose the write but never leaves another subject's entry corrupt.
type MarkerStore interface {
	Load(subjectID string) (SeenMarker, error)
	Save(marker SeenMarker) error
	Close() error
}

// OpenMarkerStore opens the backend named by the configuration.
func OpenMarkerStore(backend, path string) (MarkerStore, error) {
	switch backend {
	case "sqlite":
		return OpenSQLiteMarkerStore(path)
	default:
		return OpenJSONMarkerStore(path)
	}
}

// jsonMarkerStore keeps all markers in one JSON document, keyed by subject
// ID, rewritten atomically (temp file + rename) on every save. The mutex
// covers only the encode-and-write critical section, never a full tick.
type jsonMarkerStore struct {
	path    string
	mutex   sync.Mutex
	markers map[string]SeenMarker
}

// OpenJSONMarkerStore loads the marker file at path, creating directories as
// needed. A corrupt file returns both a usable empty store and a wrapped
// ErrStateCorrupt: the caller decides whether to warn and continue (the
// default; a too-permissive first poll is recoverable, a crash loop is not).
func OpenJSONMarkerStore(path string) (MarkerStore, error) {
	s := &jsonMarkerStore{
		path:    path,
		markers: make(map[string]SeenMarker),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to create state directory", err)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to read marker file", err)
	}
	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.markers); err != nil {
		s.markers = make(map[string]SeenMarker)
		return s, fmt.Errorf("%w: %s: %v", ErrStateCorrupt, path, err)
	}
	return s, nil
}

// Load returns the marker for a subject, or a null marker if none exists.
func (s *jsonMarkerStore) Load(subjectID string) (SeenMarker, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if m, ok := s.markers[subjectID]; ok {
		return m, nil
	}
	return SeenMarker{SubjectID: subjectID}, nil
}

// Save persists a marker, rewriting the document atomically.
func (s *jsonMarkerStore) Save(marker SeenMarker) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	marker.UpdatedAt = time.Now().UTC()
	s.markers[marker.SubjectID] = marker

	data, err := json.MarshalIndent(s.markers, "", "  ")
	if err != nil {
		return NewError(ErrorTypeState, ErrCodeStateSave, "failed to encode markers", err)
	}

	// Write to a temp file first, then rename into place so a crash
	// mid-write never truncates the live file.
	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return NewError(ErrorTypeState, ErrCodeStateSave, "failed to write marker file", err)
	}
	if err := os.Rename(tempFile, s.path); err != nil {
		return NewError(ErrorTypeState, ErrCodeStateSave, "failed to replace marker file", err)
	}
	return nil
}

func (s *jsonMarkerStore) Close() error { return nil }
