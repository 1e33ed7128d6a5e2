package storage

import (
	"context"
	"fmt"
	"sync"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	Tables map[string]*MemoryTable

	mutex sync.RWMutex
}

type MemoryTable struct {
	Columns []string
	Rows    []Row
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Tables: map[string]*MemoryTable{},
	}
}

func (s *MemoryStorage) table(name string) (*MemoryTable, error) {
	t, found := s.Tables[name]
	if !found {
		return nil, fmt.Errorf("%w: '%s'", ErrTableNotFound, name)
	}
	return t, nil
}

func (s *MemoryStorage) CountRows(ctx context.Context, table string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}

func (s *MemoryStorage) SelectWhere(
	ctx context.Context,
	table string,
	columns []string,
	filter Filter,
) ([]Row, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, c := range t.Columns {
		known[c] = true
	}
	for _, c := range columns {
		if !known[c] {
			return nil, fmt.Errorf("unknown column '%s' in table '%s'", c, table)
		}
	}
	for c := range filter {
		if !known[c] {
			return nil, fmt.Errorf("unknown column '%s' in table '%s'", c, table)
		}
	}

	rows := []Row{}
	for _, row := range t.Rows {
		if !matches(row, filter) {
			continue
		}
		selected := Row{}
		for _, c := range columns {
			selected[c] = row[c]
		}
		rows = append(rows, selected)
	}

	return rows, nil
}

func matches(row Row, filter Filter) bool {
	for column, value := range filter {
		s, ok := row[column].(string)
		if !ok || s != value {
			return false
		}
	}
	return true
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) Writer(table string) (TableWriter, error) {
	return &memoryTableWriter{storage: s, table: table}, nil
}

type memoryTableWriter struct {
	storage *MemoryStorage
	table   string
	t       *MemoryTable
}

func (w *memoryTableWriter) Begin(columns []string) error {
	w.storage.mutex.Lock()
	defer w.storage.mutex.Unlock()

	t, found := w.storage.Tables[w.table]
	if !found {
		t = &MemoryTable{Columns: columns}
		w.storage.Tables[w.table] = t
	}
	w.t = t
	return nil
}

func (w *memoryTableWriter) WriteRow(row map[string]string) error {
	if w.t == nil {
		return fmt.Errorf("writer not started")
	}

	w.storage.mutex.Lock()
	defer w.storage.mutex.Unlock()

	r := Row{}
	for _, c := range w.t.Columns {
		if v := row[c]; v != "" {
			r[c] = v
		} else {
			r[c] = nil
		}
	}
	w.t.Rows = append(w.t.Rows, r)
	return nil
}

func (w *memoryTableWriter) Close() error {
	return nil
}
