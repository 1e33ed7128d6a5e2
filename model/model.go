package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Holds all external facing types and constants.

type Order string

const (
	OrderAscending  Order = "asc"
	OrderDescending Order = "desc"
)

// Parses a sort order. Both the short and long spellings are
// accepted, case-insensitively.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return OrderAscending, nil
	case "desc", "descending":
		return OrderDescending, nil
	}
	return "", fmt.Errorf("invalid order '%s'", s)
}

func (o Order) Ascending() bool {
	return o != OrderDescending
}

// "lowest" or "highest"
func (o Order) Adjective() string {
	if o.Ascending() {
		return "lowest"
	}
	return "highest"
}

func (o Order) Description() string {
	if o.Ascending() {
		return "best (lowest delays)"
	}
	return "worst (highest delays)"
}

const (
	DefaultStationColumn = "gare_depart"
	DefaultDelayColumn   = "retard_moyen_depart"
	DefaultServiceColumn = "service"

	NationalService = "National"
)

// A single observed trip, as read from the delay table.
type DelayRecord struct {
	OriginStation string

	// Nil if the raw value was null or could not be parsed as a
	// number.
	AverageDelay *float64

	ServiceType string
}

// Mean departure delay for one origin station.
//
// JSON keys match the column names of the upstream table, which is
// what API consumers have always received.
type StationAggregate struct {
	Station   string  `json:"gare_depart"`
	MeanDelay float64 `json:"retard_moyen_depart"`
}

// Column names in the delay table.
type Columns struct {
	Station string `yaml:"station" validate:"required"`
	Delay   string `yaml:"delay" validate:"required"`
	Service string `yaml:"service" validate:"required"`
}

func DefaultColumns() Columns {
	return Columns{
		Station: DefaultStationColumn,
		Delay:   DefaultDelayColumn,
		Service: DefaultServiceColumn,
	}
}

func (c Columns) List() []string {
	return []string{c.Station, c.Delay, c.Service}
}

// Converts a raw row into a DelayRecord. Values of unexpected type
// are treated as missing.
func (c Columns) Record(row map[string]interface{}) DelayRecord {
	rec := DelayRecord{
		OriginStation: stringValue(row[c.Station]),
		ServiceType:   stringValue(row[c.Service]),
	}
	if delay, ok := ParseDelay(row[c.Delay]); ok {
		rec.AverageDelay = &delay
	}
	return rec
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Coerces a raw delay value to float64. Reports false for null,
// blank, non-numeric and non-finite values.
func ParseDelay(v interface{}) (float64, bool) {
	var f float64
	switch d := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = d
	case float32:
		f = float64(d)
	case int:
		f = float64(d)
	case int32:
		f = float64(d)
	case int64:
		f = float64(d)
	case json.Number:
		parsed, err := d.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return ParseDelay(string(d))
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return 0, false
		}
		// French exports use a decimal comma.
		s = strings.Replace(s, ",", ".", 1)
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
