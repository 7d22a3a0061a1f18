package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/types"
)

// Submitter accepts build requests
type Submitter interface {
	Submit(ctx context.Context, req types.BuildRequest) (*build.Record, error)
}

// Spool turns request files dropped into a directory into builds.
// Writers should create the file under a temporary name (dot-prefixed or
// ending in .tmp) and rename it into place. Accepted files are moved to
// processed/, rejected ones get a .failed suffix.
type Spool struct {
	dir       string
	submitter Submitter
	logger    logger.Logger
}

// NewSpool creates a spool reading from dir
func NewSpool(dir string, submitter Submitter, log logger.Logger) *Spool {
	if log == nil {
		log = logger.Nop()
	}
	return &Spool{
		dir:       dir,
		submitter: submitter,
		logger:    log.WithScope("spool"),
	}
}

// ProcessedDir is where accepted request files are moved
func (s *Spool) ProcessedDir() string {
	return filepath.Join(s.dir, "processed")
}

// Run submits the requests already present, then watches the directory
// until ctx is cancelled
func (s *Spool) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.ProcessedDir(), 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create spool watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}
	s.logger.Info("Watching spool directory", logger.WithField("dir", s.dir))

	if err := s.Drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				s.handle(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("Spool watcher error", logger.WithField("error", err))
		}
	}
}

// Drain submits every request file currently in the spool, oldest name first
func (s *Spool) Drain(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil
		}
		s.handle(ctx, filepath.Join(s.dir, name))
	}
	return nil
}

func (s *Spool) handle(ctx context.Context, path string) {
	if !isRequestFile(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		// Already handled, or still being written
		return
	}

	req, err := ReadRequest(path)
	if err != nil {
		s.reject(path, err)
		return
	}

	rec, err := s.submitter.Submit(ctx, req)
	if err != nil {
		s.reject(path, err)
		return
	}

	target := filepath.Join(s.ProcessedDir(), fmt.Sprintf("%d-%s", rec.ID(), filepath.Base(path)))
	if err := os.Rename(path, target); err != nil {
		s.logger.Warn("Failed to move processed request", logger.WithField("error", err))
		_ = os.Remove(path)
	}
}

func (s *Spool) reject(path string, cause error) {
	s.logger.Error("Rejected build request",
		logger.WithField("file", filepath.Base(path)),
		logger.WithField("error", cause))
	if err := os.Rename(path, path+".failed"); err != nil {
		s.logger.Warn("Failed to mark request as failed", logger.WithField("error", err))
	}
}

func isRequestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json", ".yml", ".yaml":
		return true
	}
	return false
}
