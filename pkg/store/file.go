package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/censor-ci/censor/pkg/build"
)

var buildFilePattern = regexp.MustCompile(`^build-(\d+)\.json$`)

// FileStore keeps one JSON document per build in a directory
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	nextID int64
}

// NewFileStore creates the directory if needed and scans it for the
// highest existing build id
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, persistErr("open", 0, err)
	}

	fs := &FileStore{dir: dir, nextID: 1}
	ids, err := fs.ids()
	if err != nil {
		return nil, persistErr("open", 0, err)
	}
	for _, id := range ids {
		if id >= fs.nextID {
			fs.nextID = id + 1
		}
	}
	return fs, nil
}

// Load reads a build by id
func (fs *FileStore) Load(ctx context.Context, id int64) (*build.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, err := fs.load(id)
	return rec, persistErr("load", id, err)
}

// Save writes rec, assigning an id when it has none
func (fs *FileStore) Save(ctx context.Context, rec *build.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	snapshot := rec.Clone()
	if !snapshot.HasID() {
		snapshot.SetID(fs.nextID)
		snapshot.SetVersion(1)
		if err := fs.write(snapshot); err != nil {
			return persistErr("save", 0, err)
		}
		fs.nextID++
		rec.SetID(snapshot.ID())
		rec.SetVersion(1)
		return nil
	}

	id := snapshot.ID()
	stored, err := fs.load(id)
	if err != nil {
		return persistErr("save", id, err)
	}
	if stored.Version() != rec.Version() {
		return fmt.Errorf("%w: build %d is at version %d, have %d", ErrConflict, id, stored.Version(), rec.Version())
	}

	snapshot.SetVersion(rec.Version() + 1)
	if err := fs.write(snapshot); err != nil {
		return persistErr("save", id, err)
	}
	rec.SetVersion(snapshot.Version())
	return nil
}

// Previous returns the latest finished build of the same project and branch
func (fs *FileStore) Previous(ctx context.Context, rec *build.Record) (*build.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	ids, err := fs.ids()
	if err != nil {
		return nil, persistErr("history", rec.ID(), err)
	}

	var latest *build.Record
	for _, id := range ids {
		if rec.HasID() && id >= rec.ID() {
			continue
		}
		if latest != nil && id < latest.ID() {
			continue
		}
		candidate, err := fs.load(id)
		if err != nil {
			return nil, persistErr("history", id, err)
		}
		if candidate.ProjectID() != rec.ProjectID() || candidate.Branch() != rec.Branch() || !candidate.IsTerminal() {
			continue
		}
		latest = candidate
	}
	return latest, nil
}

// Close is a no-op
func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) path(id int64) string {
	return filepath.Join(fs.dir, fmt.Sprintf("build-%d.json", id))
}

func (fs *FileStore) ids() ([]int64, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		m := buildFilePattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (fs *FileStore) load(id int64) (*build.Record, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read build file: %w", err)
	}

	rec := &build.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to parse build file: %w", err)
	}
	return rec, nil
}

// write replaces the build file atomically through a temp file and rename
func (fs *FileStore) write(rec *build.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build: %w", err)
	}

	target := fs.path(rec.ID())
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename build file: %w", err)
	}
	return nil
}
