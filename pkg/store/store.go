// Package store persists build records. Every implementation assigns ids
// to new records, writes a record atomically and rejects stale writes
// using the record version.
package store

import (
	"context"
	"fmt"

	"github.com/censor-ci/censor/pkg/build"
)

// Store loads and saves build records
type Store interface {
	Load(ctx context.Context, id int64) (*build.Record, error)
	Save(ctx context.Context, rec *build.Record) error
}

// History finds earlier builds of the same project and branch
type History interface {
	// Previous returns the latest finished build of rec's project and
	// branch with a smaller id, or nil when there is none.
	Previous(ctx context.Context, rec *build.Record) (*build.Record, error)
}

// Backend is a closable store that also answers history queries
type Backend interface {
	Store
	History
	Close() error
}

// Open returns the backend for driver ("sqlite" or "file")
func Open(driver, dsn string) (Backend, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLiteStore(dsn)
	case "file":
		return NewFileStore(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver: %q", driver)
	}
}
