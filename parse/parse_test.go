package parse

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgvtracker.dev/delays/storage"
)

func parseInto(t *testing.T, lines []string) (*storage.MemoryStorage, int, error) {
	s := storage.NewMemoryStorage()
	w, err := s.Writer("tgv-data")
	require.NoError(t, err)

	n, err := ParseDelays(w, strings.NewReader(strings.Join(lines, "\n")))
	return s, n, err
}

func TestParseDelaysComma(t *testing.T) {
	s, n, err := parseInto(t, []string{
		"date,service,gare_depart,gare_arrivee,retard_moyen_depart",
		"2018-01,National,PARIS LYON,MARSEILLE ST CHARLES,3.5",
		"2018-01,International,PARIS NORD,LONDRES,",
		`2018-01,National,"LYON PART DIEU",PARIS LYON,bad`,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := s.SelectWhere(
		context.Background(),
		"tgv-data",
		[]string{"gare_depart", "retard_moyen_depart"},
		storage.Filter{"service": "National"},
	)
	require.NoError(t, err)
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["gare_depart"].(string) < rows[j]["gare_depart"].(string)
	})
	assert.Equal(t, []storage.Row{
		{"gare_depart": "LYON PART DIEU", "retard_moyen_depart": "bad"},
		{"gare_depart": "PARIS LYON", "retard_moyen_depart": "3.5"},
	}, rows)

	// Blank values become NULL
	rows, err = s.SelectWhere(
		context.Background(),
		"tgv-data",
		[]string{"retard_moyen_depart", "duree_moyenne"},
		storage.Filter{"service": "International"},
	)
	require.NoError(t, err)
	assert.Equal(t, []storage.Row{{"retard_moyen_depart": nil, "duree_moyenne": nil}}, rows)
}

func TestParseDelaysSemicolonWithBOM(t *testing.T) {
	s, n, err := parseInto(t, []string{
		"\ufeffdate;service;gare_depart;retard_moyen_depart",
		"2018-01;National;BORDEAUX ST JEAN;4,2",
		"2018-02;National;BORDEAUX ST JEAN;1,8",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.CountRows(context.Background(), "tgv-data")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := s.SelectWhere(context.Background(), "tgv-data", []string{"date", "retard_moyen_depart"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []storage.Row{
		{"date": "2018-01", "retard_moyen_depart": "4,2"},
		{"date": "2018-02", "retard_moyen_depart": "1,8"},
	}, rows)
}

func TestParseDelaysErrors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		lines []string
	}{
		{"empty", []string{""}},
		{"missing gare_depart column", []string{"service,retard_moyen_depart", "National,3"}},
		{"missing delay column", []string{"service,gare_depart", "National,PARIS LYON"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := parseInto(t, tc.lines)
			assert.Error(t, err)
		})
	}
}

func TestParseDelaysBlankStation(t *testing.T) {
	s, n, err := parseInto(t, []string{
		"service,gare_depart,retard_moyen_depart",
		"National,,3",
		"National,PARIS LYON,4",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.SelectWhere(context.Background(), "tgv-data", []string{"gare_depart", "retard_moyen_depart"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []storage.Row{
		{"gare_depart": nil, "retard_moyen_depart": "3"},
		{"gare_depart": "PARIS LYON", "retard_moyen_depart": "4"},
	}, rows)
}

func TestParseDelaysHeaderOnly(t *testing.T) {
	s, n, err := parseInto(t, []string{"service,gare_depart,retard_moyen_depart"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := s.CountRows(context.Background(), "tgv-data")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDetectSeparator(t *testing.T) {
	assert.Equal(t, ';', detectSeparator("a;b;c"))
	assert.Equal(t, ',', detectSeparator("a,b,c"))
	assert.Equal(t, ',', detectSeparator("a"))
}
