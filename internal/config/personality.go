package config

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lynxbot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// ReadPersonality loads one personality rule per non-blank line.
// Lines starting with # are comments.
func ReadPersonality(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personality file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan personality file: %w", err)
	}
	return lines, nil
}

// PersonalityWatcher reloads a personality file when it changes on disk.
// The parent directory is watched so editor rename-on-save is picked up.
type PersonalityWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onChange func([]string)
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewPersonalityWatcher creates a watcher for path. onChange receives the
// freshly parsed lines after each settled change.
func NewPersonalityWatcher(path string, onChange func([]string)) (*PersonalityWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &PersonalityWatcher{
		watcher:  w,
		path:     abs,
		onChange: onChange,
		debounce: 250 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (pw *PersonalityWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return nil
	}
	pw.running = true
	pw.mu.Unlock()

	if err := pw.watcher.Add(filepath.Dir(pw.path)); err != nil {
		pw.mu.Lock()
		pw.running = false
		pw.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", pw.path, err)
	}
	logging.Boot("watching personality file %s", pw.path)

	go pw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (pw *PersonalityWatcher) Stop() {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return
	}
	pw.running = false
	pw.mu.Unlock()

	close(pw.stopCh)
	<-pw.doneCh
	if err := pw.watcher.Close(); err != nil {
		logging.BootError("personality watcher close: %v", err)
	}
}

func (pw *PersonalityWatcher) run(ctx context.Context) {
	defer close(pw.doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.stopCh:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(pw.debounce)
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			logging.BootError("personality watcher: %v", err)
		case <-pending:
			pending = nil
			lines, err := ReadPersonality(pw.path)
			if err != nil {
				logging.BootWarn("personality reload skipped: %v", err)
				continue
			}
			logging.Boot("personality reloaded: %d rules", len(lines))
			pw.onChange(lines)
		}
	}
}

// WatchPersonality starts a PersonalityWatcher for path. The caller stops it.
func WatchPersonality(ctx context.Context, path string, onChange func([]string)) (*PersonalityWatcher, error) {
	pw, err := NewPersonalityWatcher(path, onChange)
	if err != nil {
		return nil, err
	}
	if err := pw.Start(ctx); err != nil {
		pw.watcher.Close()
		return nil, err
	}
	return pw, nil
}
