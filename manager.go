package delays

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tgvtracker.dev/delays/model"
	"tgvtracker.dev/delays/storage"
)

const (
	DefaultTable = "tgv-data"
	DefaultLimit = 10
	MinLimit     = 1
	MaxLimit     = 100
)

var (
	ErrInvalidLimit = fmt.Errorf("limit must be between %d and %d", MinLimit, MaxLimit)
	ErrInvalidOrder = errors.New("order must be asc or desc")
)

type SourceErrorKind string

const (
	// The store client is missing or can't be reached.
	SourceUnavailable SourceErrorKind = "source_unavailable"

	// The store was reached but the query failed.
	UpstreamQueryError SourceErrorKind = "upstream_query_error"
)

// A failure reading from the delay table. Never raised by the
// aggregation itself, which only runs once all records are in.
type SourceError struct {
	Kind  SourceErrorKind
	Table string
	Err   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s (table '%s'): %s", e.Kind, e.Table, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func newSourceError(table string, err error) *SourceError {
	kind := UpstreamQueryError
	if storage.IsUnavailable(err) {
		kind = SourceUnavailable
	}
	return &SourceError{Kind: kind, Table: table, Err: err}
}

// Distinct origin stations in a table.
type StationCount struct {
	UniqueStations int    `json:"unique_stations_count"`
	TotalRecords   int    `json:"total_records"`
	TableName      string `json:"table_name"`
	ServiceFilter  string `json:"service_filter"`
	Message        string `json:"message,omitempty"`
}

// Manager answers delay questions on top of a Storage.
type Manager struct {
	Columns       model.Columns
	ServiceFilter string
	Logger        *slog.Logger
	Metrics       *Metrics

	storage storage.Storage
}

// Creates a new Manager reading from the given storage. Column
// names and service filter default to those of the TGV punctuality
// table. Logging is discarded unless Logger is set.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		Columns:       model.DefaultColumns(),
		ServiceFilter: model.NationalService,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),

		storage: s,
	}
}

func ValidateLimit(limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return ErrInvalidLimit
	}
	return nil
}

// Total number of rows in table.
func (m *Manager) CountRows(ctx context.Context, table string) (int, error) {
	count, err := m.storage.CountRows(ctx, table)
	if err != nil {
		serr := newSourceError(table, err)
		m.Metrics.sourceError(serr.Kind)
		m.Logger.Error("counting rows failed", "table", table, "kind", serr.Kind, "error", err)
		return 0, serr
	}
	return count, nil
}

// Checks that table is reachable and logs its size. Intended to run
// once at startup; a failure is logged and returned, but need not be
// fatal.
func (m *Manager) CheckTable(ctx context.Context, table string) (int, error) {
	count, err := m.storage.CountRows(ctx, table)
	if err != nil {
		if errors.Is(err, storage.ErrTableNotFound) {
			m.Logger.Info("table does not exist", "table", table, "error", err)
		} else {
			m.Logger.Error("checking table failed", "table", table, "error", err)
		}
		return 0, newSourceError(table, err)
	}
	m.Logger.Info("table exists", "table", table, "rows", count)
	return count, nil
}

func (m *Manager) fetchRecords(ctx context.Context, table string, columns []string) ([]model.DelayRecord, error) {
	rows, err := m.storage.SelectWhere(ctx, table, columns, storage.Filter{
		m.Columns.Service: m.ServiceFilter,
	})
	if err != nil {
		serr := newSourceError(table, err)
		m.Metrics.sourceError(serr.Kind)
		m.Logger.Error("fetching delay records failed", "table", table, "kind", serr.Kind, "error", err)
		return nil, serr
	}

	m.Metrics.fetched(len(rows))

	records := make([]model.DelayRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, m.Columns.Record(row))
	}
	return records, nil
}

// Mean departure delay per origin station, for the configured
// service, sorted by order and truncated to limit.
//
// Returns ErrInvalidLimit or ErrInvalidOrder before touching the
// store, and a *SourceError if the records can't be fetched.
func (m *Manager) AverageDelayByStation(
	ctx context.Context,
	table string,
	limit int,
	order model.Order,
) (*Result, error) {
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	if order != model.OrderAscending && order != model.OrderDescending {
		return nil, ErrInvalidOrder
	}

	start := time.Now()
	defer func() {
		m.Metrics.observeAggregation(string(order), time.Since(start))
	}()

	records, err := m.fetchRecords(ctx, table, m.Columns.List())
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		m.Logger.Warn("no service data found", "table", table, "service", m.ServiceFilter)
	}

	result := Aggregate(records, order, limit)
	result.TableName = table
	result.ServiceFilter = m.ServiceFilter
	result.Description = describe(limit, m.ServiceFilter, order)
	if len(records) == 0 {
		result.Message = fmt.Sprintf("No %s service data found", m.ServiceFilter)
	}

	m.Logger.Info(
		"retrieved stations",
		"table", table,
		"count", result.Count,
		"order", order.Adjective(),
		"records", len(records),
	)

	return result, nil
}

// Number of distinct origin stations for the configured service.
func (m *Manager) UniqueStations(ctx context.Context, table string) (*StationCount, error) {
	records, err := m.fetchRecords(ctx, table, []string{m.Columns.Station, m.Columns.Service})
	if err != nil {
		return nil, err
	}

	stations := map[string]bool{}
	for _, rec := range records {
		if rec.OriginStation != "" {
			stations[rec.OriginStation] = true
		}
	}

	count := &StationCount{
		UniqueStations: len(stations),
		TotalRecords:   len(records),
		TableName:      table,
		ServiceFilter:  m.ServiceFilter,
	}
	if len(records) == 0 {
		count.Message = fmt.Sprintf("No %s service data found", m.ServiceFilter)
	}

	m.Logger.Info("counted unique stations", "table", table, "stations", count.UniqueStations)

	return count, nil
}
