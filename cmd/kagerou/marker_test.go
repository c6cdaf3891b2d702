// cmd/kagerou/marker_test.go
package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestJSONMarkerStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "markers.json")

	store, err := OpenJSONMarkerStore(path)
	if err != nil {
		t.Fatalf("open on missing file: %v", err)
	}
	defer store.Close()

	m, err := store.Load("someone")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !m.IsNull() {
		t.Errorf("expected null marker, got %+v", m)
	}
	if m.SubjectID != "someone" {
		t.Errorf("subject id = %q", m.SubjectID)
	}
}

func TestJSONMarkerStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")

	store, err := OpenJSONMarkerStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := SeenMarker{
		SubjectID:       "alice",
		LastDeliveredID: "1790000000000000001",
		RecentIDs:       []string{"1789", "1790"},
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	// Reopen from disk: the marker must survive the process boundary.
	reopened, err := OpenJSONMarkerStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(SeenMarker{}, "UpdatedAt")); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestJSONMarkerStoreSubjectIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	store, err := OpenJSONMarkerStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Save(SeenMarker{SubjectID: "alice", LastDeliveredID: "5"}); err != nil {
		t.Fatalf("save alice: %v", err)
	}
	if err := store.Save(SeenMarker{SubjectID: "bob", LastDeliveredID: "9"}); err != nil {
		t.Fatalf("save bob: %v", err)
	}
	if err := store.Save(SeenMarker{SubjectID: "alice", LastDeliveredID: "7"}); err != nil {
		t.Fatalf("update alice: %v", err)
	}

	alice, _ := store.Load("alice")
	bob, _ := store.Load("bob")
	if alice.LastDeliveredID != "7" {
		t.Errorf("alice marker = %q, want 7", alice.LastDeliveredID)
	}
	if bob.LastDeliveredID != "9" {
		t.Errorf("bob marker = %q, want 9", bob.LastDeliveredID)
	}
}

func TestJSONMarkerStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := OpenJSONMarkerStore(path)
	if !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("expected ErrStateCorrupt, got %v", err)
	}
	if store == nil {
		t.Fatal("corrupt file must still yield a usable store")
	}
	defer store.Close()

	// The degraded store behaves like a fresh one.
	m, loadErr := store.Load("alice")
	if loadErr != nil {
		t.Fatalf("load after corruption: %v", loadErr)
	}
	if !m.IsNull() {
		t.Errorf("expected null marker after corruption, got %+v", m)
	}
	if err := store.Save(SeenMarker{SubjectID: "alice", LastDeliveredID: "3"}); err != nil {
		t.Errorf("save after corruption: %v", err)
	}
}

func TestJSONMarkerStoreAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	store, err := OpenJSONMarkerStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Save(SeenMarker{SubjectID: "alice", LastDeliveredID: "1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The temp file never lingers after a successful save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("live file missing: %v", err)
	}
}

func TestSQLiteMarkerStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.db")

	store, err := OpenSQLiteMarkerStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Unknown subject: null marker, no error.
	m, err := store.Load("alice")
	if err != nil {
		t.Fatalf("load unknown: %v", err)
	}
	if !m.IsNull() {
		t.Errorf("expected null marker, got %+v", m)
	}

	want := SeenMarker{
		SubjectID:       "alice",
		LastDeliveredID: "42",
		RecentIDs:       []string{"41", "42"},
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Upsert: a second save for the same subject replaces the row.
	want.LastDeliveredID = "43"
	if err := store.Save(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	store.Close()

	reopened, err := OpenSQLiteMarkerStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Load("alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(SeenMarker{}, "UpdatedAt")); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenMarkerStoreBackendSelection(t *testing.T) {
	dir := t.TempDir()

	jsonStore, err := OpenMarkerStore("json", filepath.Join(dir, "s.json"))
	if err != nil {
		t.Fatalf("json backend: %v", err)
	}
	jsonStore.Close()

	dbStore, err := OpenMarkerStore("sqlite", filepath.Join(dir, "s.db"))
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	dbStore.Close()
}
