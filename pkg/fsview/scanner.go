package fsview

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/buildtool/buildtool/pkg/evaluator"
	"github.com/buildtool/buildtool/pkg/telemetry"
)

// Scanner reports which previously-observed paths may have changed between
// builds, so the evaluator can mark exactly those keys dirty instead of
// reusing nothing. Start should run until ctx is canceled or Close is
// called; it is expected to invalidate keys on ev as changes are observed,
// not to return a batch at the end.
type Scanner interface {
	Start(ctx context.Context) error
	Close() error
}

// FullSweepScanner invalidates every FileKey, FileDigestKey and
// DirectoryListingKey the evaluator has ever seen at the start of each build. It is the fallback
// used when no watcher is available: correct but unable to skip the
// stat-based re-clean pass for unchanged files, which is why it is a last
// resort rather than the default.
type FullSweepScanner struct {
	ev *evaluator.Evaluator
}

// NewFullSweepScanner creates a FullSweepScanner bound to ev.
func NewFullSweepScanner(ev *evaluator.Evaluator) *FullSweepScanner {
	return &FullSweepScanner{ev: ev}
}

// Start invalidates all known source keys once, then returns immediately;
// a FullSweepScanner has nothing further to watch.
func (s *FullSweepScanner) Start(ctx context.Context) error {
	s.ev.Invalidate(s.ev.Keys("FileKey")...)
	s.ev.Invalidate(s.ev.Keys("FileDigestKey")...)
	s.ev.Invalidate(s.ev.Keys("DirectoryListingKey")...)
	return nil
}

// Close is a no-op for FullSweepScanner.
func (s *FullSweepScanner) Close() error { return nil }

// WatchScanner invalidates only the paths fsnotify actually reports as
// changed, letting unaffected files skip re-stating entirely. fsnotify
// watches are not recursive, so WatchScanner walks the workspace tree at
// Start and adds a watch per directory, then adds a watch to any directory
// created afterward so the tree stays fully covered.
type WatchScanner struct {
	ev      *evaluator.Evaluator
	root    string
	watcher *fsnotify.Watcher
	tel     *telemetry.Telemetry
	done    chan struct{}
}

// NewWatchScanner creates a WatchScanner rooted at root. tel may be nil.
func NewWatchScanner(ev *evaluator.Evaluator, root string, tel *telemetry.Telemetry) (*WatchScanner, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &WatchScanner{ev: ev, root: root, watcher: watcher, tel: tel, done: make(chan struct{})}, nil
}

// Start adds a recursive watch over root and begins processing events
// until ctx is canceled or Close is called.
func (s *WatchScanner) Start(ctx context.Context) error {
	if err := s.addTree(s.root); err != nil {
		return err
	}

	go s.run(ctx)
	return nil
}

func (s *WatchScanner) addTree(root string) error {
	listing, err := listDirectory(root)
	if err != nil {
		return err
	}
	if err := s.watcher.Add(root); err != nil {
		return err
	}
	for _, entry := range listing.Entries {
		if entry.Kind == KindDir {
			if err := s.addTree(filepath.Join(root, entry.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *WatchScanner) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handle(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.tel != nil {
				s.tel.Logger.WithError(err).Warn("workspace watch error")
			}
		}
	}
}

func (s *WatchScanner) handle(event fsnotify.Event) {
	path := event.Name
	parent := filepath.Dir(path)

	s.ev.Invalidate(FileKey{Path: path}, FileDigestKey{Path: path})
	s.ev.Invalidate(DirectoryListingKey{Path: parent})

	if event.Op&fsnotify.Create != 0 {
		if _, err := listDirectory(path); err == nil {
			_ = s.watcher.Add(path)
		}
	}

	if s.tel != nil {
		s.tel.Events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeError,
			Message: "workspace path changed: " + path,
			Level:   telemetry.EventLevelInfo,
			Data:    map[string]interface{}{"path": path, "op": event.Op.String()},
		})
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (s *WatchScanner) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
