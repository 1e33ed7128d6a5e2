package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

type SQLiteTableWriter struct {
	db          *sql.DB
	table       string
	columns     []string
	insertQuery *sql.Stmt
	insertTx    *sql.Tx
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/tgv.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database only lives as long as its connection.
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database: %s", ErrUnreachable, err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func sqliteError(table string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: '%s'", ErrTableNotFound, table)
	}
	return err
}

func (s *SQLiteStorage) CountRows(ctx context.Context, table string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdentifier(table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting rows: %w", sqliteError(table, err))
	}
	return count, nil
}

func (s *SQLiteStorage) SelectWhere(
	ctx context.Context,
	table string,
	columns []string,
	filter Filter,
) ([]Row, error) {
	query, params := buildSelect(table, columns, filter, quoteIdentifier, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("selecting rows: %w", sqliteError(table, err))
	}
	defer rows.Close()

	return scanRows(rows)
}

func (s *SQLiteStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Writer(table string) (TableWriter, error) {
	return &SQLiteTableWriter{db: s.db, table: table}, nil
}

func (w *SQLiteTableWriter) Begin(columns []string) error {
	_, err := w.db.Exec(buildCreateTable(w.table, columns, quoteIdentifier))
	if err != nil {
		return fmt.Errorf("creating table: %w", err)
	}

	// transaction with prepared statement.
	w.insertTx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	quoted := make([]string, 0, len(columns))
	marks := make([]string, 0, len(columns))
	for _, c := range columns {
		quoted = append(quoted, quoteIdentifier(c))
		marks = append(marks, "?")
	}

	w.insertQuery, err = w.insertTx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(w.table),
		strings.Join(quoted, ", "),
		strings.Join(marks, ", "),
	))
	if err != nil {
		w.insertTx.Rollback()
		w.insertTx = nil
		return fmt.Errorf("preparing insert: %w", err)
	}

	w.columns = columns

	return nil
}

func (w *SQLiteTableWriter) WriteRow(row map[string]string) error {
	if w.insertQuery == nil {
		return fmt.Errorf("writer not started")
	}

	params := make([]interface{}, 0, len(w.columns))
	for _, c := range w.columns {
		params = append(params, nullIfEmpty(row[c]))
	}

	_, err := w.insertQuery.Exec(params...)
	if err != nil {
		w.insertQuery.Close()
		w.insertTx.Rollback()
		w.insertTx = nil
		w.insertQuery = nil
		return fmt.Errorf("inserting row: %w", err)
	}

	return nil
}

func (w *SQLiteTableWriter) Close() error {
	if w.insertTx == nil {
		return nil
	}

	// commit transaction and clean up
	w.insertQuery.Close()
	err := w.insertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing insert transaction: %w", err)
	}
	w.insertTx = nil
	w.insertQuery = nil

	return nil
}
