// cmd/kagerou/subjects.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v2"
)

type subjectsFile struct {
	Subjects []Subject `yaml:"subjects"`
}

// SubjectRegistry owns the set of tracked subjects. It is loaded from a yaml
// file, mutated by slash commands, and reloaded automatically when the file
// changes on disk.
type SubjectRegistry struct {
	path     string
	mutex    sync.RWMutex
	subjects map[string]Subject
	onChange func([]Subject)
}

// LoadSubjectRegistry reads the registry file. A missing file yields an
// empty registry; operators can add subjects through commands.
func LoadSubjectRegistry(path string) (*SubjectRegistry, error) {
	r := &SubjectRegistry{
		path:     path,
		subjects: make(map[string]Subject),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SubjectRegistry) reload() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to read subjects file", err)
	}

	var file subjectsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to parse subjects file", err)
	}

	subjects := make(map[string]Subject, len(file.Subjects))
	for _, s := range file.Subjects {
		s.Handle = normalizeHandle(s.Handle)
		if s.Handle == "" || s.ChannelID == "" {
			Log().Warn("skipping subject with missing handle or channel_id")
			continue
		}
		if s.FirstPoll == "" {
			s.FirstPoll = cfg.FirstPollDefault
		}
		if s.Dedupe == "" {
			s.Dedupe = DedupeMarker
		}
		subjects[s.Handle] = s
	}

	r.mutex.Lock()
	r.subjects = subjects
	r.mutex.Unlock()
	return nil
}

// List returns all subjects, sorted by handle.
func (r *SubjectRegistry) List() []Subject {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Get looks up a subject by (unnormalized) handle.
func (r *SubjectRegistry) Get(handle string) (Subject, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	s, ok := r.subjects[normalizeHandle(handle)]
	return s, ok
}

// Add registers a new subject and persists the registry.
func (r *SubjectRegistry) Add(s Subject) error {
	s.Handle = normalizeHandle(s.Handle)
	if s.Handle == "" {
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "subject handle is required", nil)
	}
	if s.ChannelID == "" {
		return NewError(ErrorTypeConfig, ErrCodeConfigInvalid, "subject channel_id is required", nil)
	}
	if s.FirstPoll == "" {
		s.FirstPoll = cfg.FirstPollDefault
	}
	if s.Dedupe == "" {
		s.Dedupe = DedupeMarker
	}

	r.mutex.Lock()
	if _, exists := r.subjects[s.Handle]; exists {
		r.mutex.Unlock()
		return fmt.Errorf("subject @%s is already tracked", s.Handle)
	}
	r.subjects[s.Handle] = s
	r.mutex.Unlock()

	// Persist before the scheduler hears about it; a subject that cannot
	// be saved would otherwise run until the next restart reverts it.
	if err := r.save(); err != nil {
		r.mutex.Lock()
		delete(r.subjects, s.Handle)
		r.mutex.Unlock()
		return err
	}
	r.notify()
	return nil
}

// Remove unregisters a subject and persists the registry.
func (r *SubjectRegistry) Remove(handle string) error {
	handle = normalizeHandle(handle)

	r.mutex.Lock()
	removed, exists := r.subjects[handle]
	if !exists {
		r.mutex.Unlock()
		return fmt.Errorf("subject @%s is not tracked", handle)
	}
	delete(r.subjects, handle)
	r.mutex.Unlock()

	if err := r.save(); err != nil {
		r.mutex.Lock()
		r.subjects[handle] = removed
		r.mutex.Unlock()
		return err
	}
	r.notify()
	return nil
}

// SetChangeHandler registers the callback invoked with the full subject list
// whenever the registry changes (file reload or command mutation).
func (r *SubjectRegistry) SetChangeHandler(fn func([]Subject)) {
	r.mutex.Lock()
	r.onChange = fn
	r.mutex.Unlock()
}

func (r *SubjectRegistry) notify() {
	r.mutex.RLock()
	fn := r.onChange
	r.mutex.RUnlock()
	if fn != nil {
		fn(r.List())
	}
}

// save writes the registry back to disk atomically.
func (r *SubjectRegistry) save() error {
	data, err := yaml.Marshal(subjectsFile{Subjects: r.List()})
	if err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to encode subjects", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to create config directory", err)
	}

	tempFile := r.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to write subjects file", err)
	}
	return os.Rename(tempFile, r.path)
}

// Watch reloads the registry when the file changes on disk, so operators can
// edit subjects.yml without a restart. The watcher runs until stopCh closes.
func (r *SubjectRegistry) Watch(stopCh <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to create file watcher", err)
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return NewError(ErrorTypeConfig, ErrCodeConfigLoad, "failed to watch config directory", err)
	}

	go func() {
		defer watcher.Close()

		// Editors fire several events per save; debounce before reloading.
		var pending *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(r.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.reload(); err != nil {
						Log().Error("failed to reload subjects: %v", err)
						return
					}
					Log().Info("subjects reloaded from %s", r.path)
					r.notify()
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Log().Warn("subjects watcher error: %v", err)
			case <-stopCh:
				return
			}
		}
	}()
	return nil
}
