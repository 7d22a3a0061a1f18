package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/build"
	"github.com/censor-ci/censor/pkg/types"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	dir := t.TempDir()
	sqlite, err := NewSQLiteStore(filepath.Join(dir, "db", "censor.db"))
	require.NoError(t, err)
	files, err := NewFileStore(filepath.Join(dir, "files"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = files.Close()
	})
	return map[string]Backend{"sqlite": sqlite, "file": files}
}

func newRecord(t *testing.T, project int64, branch string) *build.Record {
	t.Helper()
	rec, err := build.New(map[string]interface{}{
		"project_id": project,
		"branch":     branch,
		"source":     types.SourceManual,
	})
	require.NoError(t, err)
	require.NoError(t, rec.MarkPending(time.Now()))
	return rec
}

func finished(t *testing.T, s Store, project int64, branch string, status types.Status) *build.Record {
	t.Helper()
	ctx := context.Background()
	rec := newRecord(t, project, branch)
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, rec.Start(time.Now()))
	require.NoError(t, rec.Finish(status, time.Now()))
	require.NoError(t, s.Save(ctx, rec))
	return rec
}

func TestSaveAssignsIDsAndRoundTrips(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := newRecord(t, 3, "main")
			rec.SetCommitID("abc123")
			rec.AddExtraValue("php_mess_detector-warnings", 3)
			rec.ReportError("php_mess_detector", "Avoid unused variables", types.SeverityHigh, "src/Foo.php", 10, 12)

			require.NoError(t, s.Save(ctx, rec))
			require.True(t, rec.HasID())
			assert.Equal(t, int64(1), rec.Version())

			second := newRecord(t, 3, "main")
			require.NoError(t, s.Save(ctx, second))
			assert.Greater(t, second.ID(), rec.ID())

			loaded, err := s.Load(ctx, rec.ID())
			require.NoError(t, err)
			assert.Equal(t, rec.ID(), loaded.ID())
			assert.Equal(t, "abc123", loaded.CommitID())
			assert.Equal(t, types.StatusPending, loaded.Status())
			assert.Equal(t, types.SourceManual, loaded.Source())
			assert.EqualValues(t, 3, loaded.Extra("php_mess_detector-warnings"))
			assert.Equal(t, 1, loaded.ErrorsTotal())

			errs := loaded.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, "src/Foo.php", errs[0].File)
			assert.Equal(t, 10, errs[0].BeginLine)
			assert.Equal(t, 12, errs[0].EndLine)
			assert.Equal(t, types.SeverityHigh, errs[0].Severity)
			assert.Equal(t, rec.Errors()[0].Hash(), errs[0].Hash())
		})
	}
}

func TestLoadMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), 42)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := newRecord(t, 1, "main")
			require.NoError(t, s.Save(ctx, rec))

			a, err := s.Load(ctx, rec.ID())
			require.NoError(t, err)
			b, err := s.Load(ctx, rec.ID())
			require.NoError(t, err)

			require.NoError(t, a.Start(time.Now()))
			require.NoError(t, s.Save(ctx, a))
			assert.Equal(t, int64(2), a.Version())

			require.NoError(t, b.SetSource(types.SourcePeriodical))
			err = s.Save(ctx, b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConflict))

			stored, err := s.Load(ctx, rec.ID())
			require.NoError(t, err)
			assert.Equal(t, types.StatusRunning, stored.Status())
			assert.Equal(t, types.SourceManual, stored.Source())
		})
	}
}

func TestConcurrentSavesOfDistinctBuilds(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			recs := make([]*build.Record, 8)
			for i := range recs {
				recs[i] = newRecord(t, 1, "main")
				wg.Add(1)
				go func(rec *build.Record) {
					defer wg.Done()
					assert.NoError(t, s.Save(ctx, rec))
				}(recs[i])
			}
			wg.Wait()

			seen := make(map[int64]bool)
			for _, rec := range recs {
				assert.False(t, seen[rec.ID()], "duplicate id %d", rec.ID())
				seen[rec.ID()] = true
			}
		})
	}
}

func TestPrevious(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := newRecord(t, 1, "main")
			require.NoError(t, s.Save(ctx, first))
			prev, err := s.Previous(ctx, first)
			require.NoError(t, err)
			assert.Nil(t, prev)

			failed := finished(t, s, 1, "main", types.StatusFailed)
			finished(t, s, 1, "feature", types.StatusSuccess)
			finished(t, s, 2, "main", types.StatusSuccess)
			running := newRecord(t, 1, "main")
			require.NoError(t, s.Save(ctx, running))

			current := newRecord(t, 1, "main")
			require.NoError(t, s.Save(ctx, current))

			prev, err = s.Previous(ctx, current)
			require.NoError(t, err)
			require.NotNil(t, prev)
			assert.Equal(t, failed.ID(), prev.ID())
			assert.Equal(t, types.StatusFailed, prev.Status())
		})
	}
}

func TestFileStoreResumesIDs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	rec := newRecord(t, 1, "main")
	require.NoError(t, fs.Save(ctx, rec))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	next := newRecord(t, 1, "main")
	require.NoError(t, reopened.Save(ctx, next))
	assert.Equal(t, rec.ID()+1, next.ID())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "")
	assert.Error(t, err)
}

func TestPersistenceErrorWrapping(t *testing.T) {
	err := persistErr("save", 3, errors.New("disk full"))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "save", pe.Op)
	assert.Equal(t, "store save build 3: disk full", err.Error())

	assert.Nil(t, persistErr("save", 3, nil))
	assert.ErrorIs(t, persistErr("load", 1, ErrNotFound), ErrNotFound)
}
