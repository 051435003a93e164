package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Store operations after Close.
var ErrClosed = errors.New("state store closed")

type request struct {
	fn   func(*Settings) // mutator, nil for pure reads
	snap chan Settings   // receives a snapshot after the request is served
	err  chan error
}

// Store serializes all access to the persisted settings through one owning
// goroutine. Every mutation is written to disk before Update returns, so a
// crash never loses more than in-flight work.
type Store struct {
	path      string
	logger    *zap.Logger
	requests  chan request
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewStore loads the state file (falling back to the given defaults when it
// is missing or unreadable) and starts the owning goroutine.
func NewStore(path string, defaults Settings, logger *zap.Logger) *Store {
	s := &Store{
		path:     path,
		logger:   logger.Named("state"),
		requests: make(chan request),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	settings := s.load(defaults)
	go s.run(settings)
	return s
}

// load reads and normalizes the state file. A corrupt or missing file is
// never fatal; the daemon starts from defaults instead of crash-looping.
func (s *Store) load(defaults Settings) Settings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("No state file yet, starting from defaults",
				zap.String("path", s.path))
		} else {
			s.logger.Error("Failed to read state file, starting from defaults",
				zap.String("path", s.path),
				zap.Error(err))
		}
		settings := defaults.clone()
		settings.normalize()
		return settings
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.logger.Error("State file is corrupt, starting from defaults",
			zap.String("path", s.path),
			zap.Error(err))
		settings = defaults.clone()
	}

	settings.normalize()
	return settings
}

// run is the owning goroutine. It is the only code that ever touches the
// in-memory settings or the file.
func (s *Store) run(settings Settings) {
	defer close(s.done)

	for {
		select {
		case req := <-s.requests:
			var err error
			if req.fn != nil {
				req.fn(&settings)
				settings.normalize()
				err = s.persist(&settings)
			}
			if req.snap != nil {
				req.snap <- settings.clone()
			}
			if req.err != nil {
				req.err <- err
			}

		case <-s.closing:
			return
		}
	}
}

// persist writes the settings to disk via a temp-file rename so a crash
// mid-write cannot truncate the previous state.
func (s *Store) persist(settings *Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current settings.
func (s *Store) Snapshot() Settings {
	req := request{snap: make(chan Settings, 1)}
	select {
	case s.requests <- req:
		return <-req.snap
	case <-s.closing:
		return Settings{}
	}
}

// Update applies fn to the settings and persists the result before
// returning. fn runs on the owning goroutine and must not call back into
// the store.
func (s *Store) Update(fn func(*Settings)) error {
	req := request{fn: fn, err: make(chan error, 1)}
	select {
	case s.requests <- req:
		if err := <-req.err; err != nil {
			s.logger.Error("Failed to persist state", zap.Error(err))
			return err
		}
		return nil
	case <-s.closing:
		return ErrClosed
	}
}

// Close stops the owning goroutine.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	<-s.done
}
