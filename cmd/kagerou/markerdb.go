// cmd/kagerou/markerdb.go
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const markerSchema = `
CREATE TABLE IF NOT EXISTS markers (
	subject_id        TEXT PRIMARY KEY,
	last_delivered_id TEXT NOT NULL DEFAULT '',
	recent_ids        TEXT NOT NULL DEFAULT '[]',
	updated_at        TEXT NOT NULL
);`

// sqliteMarkerStore keeps one row per subject. Row-level upserts mean saves
// for different subjects never rewrite each other's entries, unlike the
// single-document JSON backend.
type sqliteMarkerStore struct {
	db *sql.DB
}

// OpenSQLiteMarkerStore opens (creating if needed) the marker database.
func OpenSQLiteMarkerStore(path string) (MarkerStore, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to create state directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to open marker database", err)
	}

	if _, err := db.Exec(markerSchema); err != nil {
		_ = db.Close()
		return nil, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to apply marker schema", err)
	}

	return &sqliteMarkerStore{db: db}, nil
}

func (s *sqliteMarkerStore) Load(subjectID string) (SeenMarker, error) {
	marker := SeenMarker{SubjectID: subjectID}

	var recentJSON, updatedAt string
	err := s.db.QueryRow(`
		SELECT last_delivered_id, recent_ids, updated_at
		FROM markers WHERE subject_id = ?
	`, subjectID).Scan(&marker.LastDeliveredID, &recentJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marker, nil
	}
	if err != nil {
		return marker, NewError(ErrorTypeState, ErrCodeStateLoad, "failed to load marker", err)
	}

	if err := json.Unmarshal([]byte(recentJSON), &marker.RecentIDs); err != nil {
		return SeenMarker{SubjectID: subjectID}, fmt.Errorf("%w: subject %s: %v", ErrStateCorrupt, subjectID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		marker.UpdatedAt = t
	}
	return marker, nil
}

func (s *sqliteMarkerStore) Save(marker SeenMarker) error {
	recentJSON, err := json.Marshal(marker.RecentIDs)
	if err != nil {
		return NewError(ErrorTypeState, ErrCodeStateSave, "failed to encode recent IDs", err)
	}
	if marker.RecentIDs == nil {
		recentJSON = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT INTO markers (subject_id, last_delivered_id, recent_ids, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			last_delivered_id = excluded.last_delivered_id,
			recent_ids = excluded.recent_ids,
			updated_at = excluded.updated_at
	`, marker.SubjectID, marker.LastDeliveredID, string(recentJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return NewError(ErrorTypeState, ErrCodeStateSave, "failed to save marker", err)
	}
	return nil
}

func (s *sqliteMarkerStore) Close() error {
	return s.db.Close()
}
