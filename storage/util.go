package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Quotes an SQL identifier. Table names like "tgv-data" are not
// valid bare identifiers, and table names come from requests.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Builds a SELECT with equality conditions. Filter columns are
// sorted to keep the query stable.
func buildSelect(
	table string,
	columns []string,
	filter Filter,
	quote func(string) string,
	placeholder func(int) string,
) (string, []interface{}) {
	quoted := make([]string, 0, len(columns))
	for _, c := range columns {
		quoted = append(quoted, quote(c))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quote(table))

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := []string{}
	params := []interface{}{}
	for i, k := range keys {
		conditions = append(conditions, fmt.Sprintf("%s = %s", quote(k), placeholder(i+1)))
		params = append(params, filter[k])
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	return query, params
}

func buildCreateTable(table string, columns []string, quote func(string) string) string {
	defs := make([]string, 0, len(columns))
	for _, c := range columns {
		defs = append(defs, quote(c)+" TEXT")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

// Scans all rows into string-keyed maps. NULL becomes nil, anything
// else its text representation.
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := []Row{}
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := Row{}
		for i, c := range columns {
			if values[i].Valid {
				row[c] = values[i].String
			} else {
				row[c] = nil
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
