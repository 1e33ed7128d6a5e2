package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultRESTTimeout  = 30 * time.Second
	DefaultRESTPageSize = 1000
	DefaultRESTMaxSize  = 64 << 20 // 64 MB per page
)

type RESTConfig struct {
	// Project URL, e.g. https://xyz.supabase.co
	URL string

	// API key, sent both as apikey and bearer token.
	Key string

	Timeout  time.Duration
	PageSize int
	MaxSize  int

	// Optional. Defaults to a client with Timeout.
	Client *http.Client
}

// Storage on top of a PostgREST endpoint, as exposed by Supabase.
type RESTStorage struct {
	RESTConfig

	base *url.URL
}

type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewRESTStorage(cfg RESTConfig) (*RESTStorage, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errors.Wrap(ErrNotInitialized, "missing REST URL or key")
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/") + "/rest/v1/")
	if err != nil {
		return nil, errors.Wrap(err, "parsing REST URL")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRESTTimeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultRESTPageSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRESTMaxSize
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	return &RESTStorage{
		RESTConfig: cfg,
		base:       base,
	}, nil
}

func (s *RESTStorage) tableURL(table string, query url.Values) string {
	u := *s.base
	u.Path += url.PathEscape(table)
	u.RawQuery = query.Encode()
	return u.String()
}

// Performs a GET and returns the response if status is 2xx. Caller
// closes the body.
func (s *RESTStorage) get(
	ctx context.Context,
	table string,
	query url.Values,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.tableURL(table, query), nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}

	req.Header.Set("apikey", s.Key)
	req.Header.Set("Authorization", "Bearer "+s.Key)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUnreachable, "making request: %s", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	return nil, s.statusError(table, resp)
}

func (s *RESTStorage) statusError(table string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr restError
	_ = json.Unmarshal(body, &apiErr)

	// 42P01 comes from postgres, PGRST205 from PostgREST's schema
	// cache.
	if resp.StatusCode == http.StatusNotFound || apiErr.Code == pqUndefinedTable || apiErr.Code == "PGRST205" {
		return errors.Wrapf(ErrTableNotFound, "'%s'", table)
	}

	if resp.StatusCode >= 500 {
		return errors.Wrapf(ErrUnreachable, "status %d", resp.StatusCode)
	}

	if apiErr.Message != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

func (s *RESTStorage) CountRows(ctx context.Context, table string) (int, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("limit", "0")

	resp, err := s.get(ctx, table, query, map[string]string{"Prefer": "count=exact"})
	if err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	defer resp.Body.Close()

	count, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if !ok {
		return 0, ErrCountUnsupported
	}
	return count, nil
}

// Extracts the total from a Content-Range header such as "0-9/120"
// or "*/120". A total of "*" means unknown.
func parseContentRangeTotal(header string) (int, bool) {
	i := strings.LastIndex(header, "/")
	if i < 0 {
		return 0, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(header[i+1:]))
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

// Selects rows page by page. The first page asks for an exact count,
// and paging continues until that many rows have been read or a page
// comes back empty. Pages may be shorter than PageSize when the server
// caps rows per response (db-max-rows).
func (s *RESTStorage) SelectWhere(
	ctx context.Context,
	table string,
	columns []string,
	filter Filter,
) ([]Row, error) {
	query := url.Values{}
	query.Set("select", strings.Join(columns, ","))

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.Set(k, "eq."+filter[k])
	}

	// OFFSET paging is only stable over a fixed order.
	if len(columns) > 0 {
		order := make([]string, 0, len(columns))
		for _, c := range columns {
			order = append(order, c+".asc")
		}
		query.Set("order", strings.Join(order, ","))
	}

	rows := []Row{}
	total := -1
	for offset := 0; total < 0 || offset < total; {
		page, pageTotal, err := s.selectPage(ctx, table, query, offset, offset == 0)
		if err != nil {
			return nil, errors.Wrapf(err, "selecting rows (offset %d)", offset)
		}
		if offset == 0 {
			total = pageTotal
		}
		if len(page) == 0 {
			break
		}
		rows = append(rows, page...)
		offset += len(page)
	}

	return rows, nil
}

// Fetches one page starting at offset. If count is set, the total
// row count is requested too and returned, or -1 if the server
// doesn't report it.
func (s *RESTStorage) selectPage(
	ctx context.Context,
	table string,
	query url.Values,
	offset int,
	count bool,
) ([]Row, int, error) {
	headers := map[string]string{
		"Range-Unit": "items",
		"Range":      fmt.Sprintf("%d-%d", offset, offset+s.PageSize-1),
	}
	if count {
		headers["Prefer"] = "count=exact"
	}

	resp, err := s.get(ctx, table, query, headers)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(io.LimitReader(resp.Body, int64(s.MaxSize)))
	dec.UseNumber()

	page := []Row{}
	if err := dec.Decode(&page); err != nil {
		return nil, 0, errors.Wrap(err, "decoding rows")
	}

	total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if !ok {
		total = -1
	}
	return page, total, nil
}

func (s *RESTStorage) Close() error {
	s.Client.CloseIdleConnections()
	return nil
}
