package storage

import (
	"context"
	"errors"
)

var (
	// The client was never set up, typically because credentials
	// are missing.
	ErrNotInitialized = errors.New("storage client not initialized")

	// The store could not be reached.
	ErrUnreachable = errors.New("storage unreachable")

	ErrTableNotFound    = errors.New("table not found")
	ErrCountUnsupported = errors.New("row count not supported")
)

// A row as returned by the store, keyed by column name. Values are
// whatever the backend produces (strings, numbers, nil).
type Row map[string]interface{}

// Equality filter: column -> value. All conditions must hold.
type Filter map[string]string

// Read access to a hosted table store.
//
// Implementations must return ErrNotInitialized or ErrUnreachable
// (possibly wrapped) when the store is unavailable, so callers can
// tell a broken source from a query that matched nothing. Queries
// matching nothing return an empty, non-nil slice.
type Storage interface {
	// Total number of rows in a table.
	CountRows(ctx context.Context, table string) (int, error)

	// Retrieves the given columns of all rows matching the
	// filter. No ordering is guaranteed.
	SelectWhere(ctx context.Context, table string, columns []string, filter Filter) ([]Row, error)

	Close() error
}

// Writes rows into a single table. Only used to seed local
// databases; the service itself never writes.
//
// Begin() creates the table (if needed) with the given columns, all
// of which are stored as text.
type TableWriter interface {
	Begin(columns []string) error
	WriteRow(row map[string]string) error
	Close() error
}

// A Storage that can also be seeded.
type WritableStorage interface {
	Storage
	Writer(table string) (TableWriter, error)
}

// Storage used when no backend could be configured. Every operation
// fails with ErrNotInitialized.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return ErrNotInitialized
	}
	return &reasonError{reason: u.Reason, err: ErrNotInitialized}
}

func (u Unavailable) CountRows(ctx context.Context, table string) (int, error) {
	return 0, u.err()
}

func (u Unavailable) SelectWhere(ctx context.Context, table string, columns []string, filter Filter) ([]Row, error) {
	return nil, u.err()
}

func (u Unavailable) Close() error {
	return nil
}

type reasonError struct {
	reason string
	err    error
}

func (e *reasonError) Error() string {
	return e.err.Error() + ": " + e.reason
}

func (e *reasonError) Unwrap() error {
	return e.err
}

// True if err indicates the store itself is unavailable, as opposed
// to a failed query.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotInitialized) || errors.Is(err, ErrUnreachable)
}
