package parse

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tgvtracker.dev/delays/storage"
)

// One row of the monthly TGV punctuality export. Values are kept as
// text: the table is seeded as-is, and coercion happens when
// aggregating.
type DelayCSV struct {
	Date                  string `csv:"date"`
	Service               string `csv:"service"`
	OriginStation         string `csv:"gare_depart"`
	DestinationStation    string `csv:"gare_arrivee"`
	AverageDuration       string `csv:"duree_moyenne"`
	ScheduledTrains       string `csv:"nb_train_prevu"`
	Cancellations         string `csv:"nb_annulation"`
	LateDepartures        string `csv:"nb_train_depart_retard"`
	AverageDepartureDelay string `csv:"retard_moyen_depart"`
	AverageAllDepartures  string `csv:"retard_moyen_tous_trains_depart"`
	LateArrivals          string `csv:"nb_train_retard_arrivee"`
	AverageArrivalDelay   string `csv:"retard_moyen_arrivee"`
}

var DelayColumns = []string{
	"date",
	"service",
	"gare_depart",
	"gare_arrivee",
	"duree_moyenne",
	"nb_train_prevu",
	"nb_annulation",
	"nb_train_depart_retard",
	"retard_moyen_depart",
	"retard_moyen_tous_trains_depart",
	"nb_train_retard_arrivee",
	"retard_moyen_arrivee",
}

var requiredColumns = []string{"service", "gare_depart", "retard_moyen_depart"}

func (d *DelayCSV) row() map[string]string {
	return map[string]string{
		"date":                            d.Date,
		"service":                         d.Service,
		"gare_depart":                     d.OriginStation,
		"gare_arrivee":                    d.DestinationStation,
		"duree_moyenne":                   d.AverageDuration,
		"nb_train_prevu":                  d.ScheduledTrains,
		"nb_annulation":                   d.Cancellations,
		"nb_train_depart_retard":          d.LateDepartures,
		"retard_moyen_depart":             d.AverageDepartureDelay,
		"retard_moyen_tous_trains_depart": d.AverageAllDepartures,
		"nb_train_retard_arrivee":         d.LateArrivals,
		"retard_moyen_arrivee":            d.AverageArrivalDelay,
	}
}

// Picks ';' or ',' depending on which one splits the header.
func detectSeparator(header string) rune {
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

// Parses a CSV export of the delay table and writes every row.
// Returns the number of rows written. The writer is closed on
// success.
func ParseDelays(writer storage.TableWriter, data io.Reader) (int, error) {
	// The BOM reader strips unicode BOMs if present.
	br := bufio.NewReader(bom.NewReader(data))

	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	if strings.TrimSpace(header) == "" {
		return 0, fmt.Errorf("missing header")
	}

	sep := detectSeparator(header)

	present := map[string]bool{}
	for _, h := range strings.Split(strings.TrimSpace(header), string(sep)) {
		present[strings.Trim(strings.TrimSpace(h), `"`)] = true
	}
	for _, c := range requiredColumns {
		if !present[c] {
			return 0, fmt.Errorf("missing column %s", c)
		}
	}

	// LazyQuotes required (at least) to survive sloppy use of
	// quotes.
	r := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	r.Comma = sep
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records := []*DelayCSV{}
	if err := gocsv.UnmarshalCSV(r, &records); err != nil {
		return 0, fmt.Errorf("unmarshaling delay csv: %w", err)
	}

	err = writer.Begin(DelayColumns)
	if err != nil {
		return 0, fmt.Errorf("beginning table: %w", err)
	}

	// Rows are stored as-is, blank stations included. Aggregation
	// skips those.
	for i, rec := range records {
		err := writer.WriteRow(rec.row())
		if err != nil {
			return 0, errors.Wrapf(err, "writing row %d", i+1)
		}
	}

	err = writer.Close()
	if err != nil {
		return 0, fmt.Errorf("closing table writer: %w", err)
	}

	return len(records), nil
}
