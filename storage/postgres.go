package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

const (
	PSQLRowBatchSize = 5000

	pqUndefinedTable = "42P01"
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLTableWriter struct {
	db      *sql.DB
	table   string
	columns []string
	buf     []map[string]string
}

// Creates a new Postgres Storage using the provided connection
// string. This is the same database that backs the hosted REST API.
func NewPSQLStorage(connStr string) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping db: %s", ErrUnreachable, err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func psqlError(table string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == pqUndefinedTable {
			return fmt.Errorf("%w: '%s'", ErrTableNotFound, table)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}

	return err
}

func (s *PSQLStorage) CountRows(ctx context.Context, table string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", psqlError(table, err))
	}
	return count, nil
}

func (s *PSQLStorage) SelectWhere(
	ctx context.Context,
	table string,
	columns []string,
	filter Filter,
) ([]Row, error) {
	query, params := buildSelect(table, columns, filter, pq.QuoteIdentifier, func(i int) string {
		return fmt.Sprintf("$%d", i)
	})

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("selecting rows: %w", psqlError(table, err))
	}
	defer rows.Close()

	return scanRows(rows)
}

// Drops table if it exists. Writers append, so this is how a table
// gets reloaded from scratch.
func (s *PSQLStorage) DropTable(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(table))
	if err != nil {
		return fmt.Errorf("dropping table: %w", psqlError(table, err))
	}
	return nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) Writer(table string) (TableWriter, error) {
	return &PSQLTableWriter{db: s.db, table: table}, nil
}

func (w *PSQLTableWriter) Begin(columns []string) error {
	_, err := w.db.Exec(buildCreateTable(w.table, columns, pq.QuoteIdentifier))
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	w.columns = columns
	return nil
}

func (w *PSQLTableWriter) WriteRow(row map[string]string) error {
	if w.columns == nil {
		return fmt.Errorf("writer not started")
	}

	w.buf = append(w.buf, row)
	if len(w.buf) >= PSQLRowBatchSize {
		err := w.flush()
		if err != nil {
			return fmt.Errorf("flushing rows: %w", err)
		}
	}
	return nil
}

func (w *PSQLTableWriter) flush() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(w.table, w.columns...))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range w.buf {
		params := make([]interface{}, 0, len(w.columns))
		for _, c := range w.columns {
			params = append(params, nullIfEmpty(row[c]))
		}
		_, err = stmt.Exec(params...)
		if err != nil {
			return fmt.Errorf("COPY row: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.buf = nil

	return nil
}

func (w *PSQLTableWriter) Close() error {
	if len(w.buf) > 0 {
		err := w.flush()
		if err != nil {
			return fmt.Errorf("flushing rows: %w", err)
		}
	}
	return nil
}
