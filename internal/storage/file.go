package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/spaceflow-dev/spaceflow/internal/session"
)

// File is storage kept in a JSON object on disk. Several processes may hold
// the same file; each File reports writes it did not make itself.
type File struct {
	path string
	log  zerolog.Logger

	mu   sync.Mutex
	seen map[string]string // last contents this handle wrote or reported
}

var (
	_ session.KeyValue   = (*File)(nil)
	_ session.ChangeFeed = (*File)(nil)
)

// OpenFile opens (or creates) the storage file at path
func OpenFile(path string, log zerolog.Logger) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	f := &File{path: path, log: log}
	data, err := f.read()
	if err != nil {
		return nil, err
	}
	f.seen = data
	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	return f.update(key, &value)
}

func (f *File) Remove(key string) error {
	return f.update(key, nil)
}

func (f *File) update(key string, value *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}

	if value == nil {
		if _, ok := data[key]; !ok {
			delete(f.seen, key)
			return nil
		}
		delete(data, key)
	} else {
		data[key] = *value
	}

	if err := f.write(data); err != nil {
		return err
	}

	if value == nil {
		delete(f.seen, key)
	} else {
		f.seen[key] = *value
	}
	return nil
}

// read must be called with mu held (or before the File is shared)
func (f *File) read() (map[string]string, error) {
	data := make(map[string]string)

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(raw) == 0 {
		return data, nil
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("Storage file is corrupt, starting empty")
		return make(map[string]string), nil
	}
	return data, nil
}

// write replaces the file atomically so readers never observe a partial write
func (f *File) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storage-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set storage permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// Watch reports keys changed on disk by other processes
func (f *File) Watch(fn func(session.Change)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: writes land through rename, which replaces the inode
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-stopCh:
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(f.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				for _, c := range f.diff() {
					fn(c)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.log.Warn().Err(err).Str("path", f.path).Msg("Storage watcher error")
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
			if err := watcher.Close(); err != nil {
				f.log.Debug().Err(err).Msg("Error closing storage watcher")
			}
		})
	}, nil
}

// diff compares the file with what this handle last saw and records the new
// contents
func (f *File) diff() []session.Change {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		f.log.Warn().Err(err).Msg("Failed to re-read storage file")
		return nil
	}

	var changes []session.Change
	for k, v := range data {
		if old, ok := f.seen[k]; !ok || old != v {
			value := v
			changes = append(changes, session.Change{Key: k, NewValue: &value})
		}
	}
	for k := range f.seen {
		if _, ok := data[k]; !ok {
			changes = append(changes, session.Change{Key: k})
		}
	}
	f.seen = data
	return changes
}
