package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tgvtracker.dev/delays"
	"tgvtracker.dev/delays/model"
)

type delaysQuery struct {
	TableName string `validate:"required,max=63"`
	Limit     int    `validate:"gte=1,lte=100"`
	Order     string `validate:"oneof=asc ascending desc descending"`
}

type validationDetail struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

type validationResponse struct {
	Detail []validationDetail `json:"detail"`
}

type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type delaysResponse struct {
	Method          string      `json:"method"`
	ExecutionTimeMS float64     `json:"execution_time_ms"`
	TableName       string      `json:"table_name"`
	Limit           int         `json:"limit"`
	Order           model.Order `json:"order"`
	Description     string      `json:"description"`
	Result          interface{} `json:"result"`
}

type countRowsResponse struct {
	RowCount *int   `json:"row_count"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Encodes v in full before writing. Answers 500 if v can't be
// encoded.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.logger.Error("encoding response failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func sourceErrorPayload(err error) errorPayload {
	var serr *delays.SourceError
	if errors.As(err, &serr) {
		return errorPayload{Error: serr.Err.Error(), Kind: string(serr.Kind)}
	}
	return errorPayload{Error: err.Error(), Kind: string(delays.UpstreamQueryError)}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to TGV Tracker API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) tableParam(r *http.Request) string {
	if table := r.URL.Query().Get("table_name"); table != "" {
		return table
	}
	return s.defaultTable
}

func (s *Server) handleCountRows(w http.ResponseWriter, r *http.Request) {
	count, err := s.manager.CountRows(r.Context(), s.tableParam(r))
	if err != nil {
		payload := sourceErrorPayload(err)
		s.writeJSON(w, http.StatusOK, countRowsResponse{Error: payload.Error, Kind: payload.Kind})
		return
	}
	s.writeJSON(w, http.StatusOK, countRowsResponse{RowCount: &count})
}

func (s *Server) handleStationCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.manager.UniqueStations(r.Context(), s.tableParam(r))
	if err != nil {
		s.writeJSON(w, http.StatusOK, sourceErrorPayload(err))
		return
	}
	s.writeJSON(w, http.StatusOK, count)
}

// Parses and validates /api/delays parameters. Returns nil details
// on success.
func (s *Server) parseDelaysQuery(r *http.Request) (*delaysQuery, []validationDetail) {
	values := r.URL.Query()

	q := &delaysQuery{
		TableName: s.defaultTable,
		Limit:     delays.DefaultLimit,
		Order:     string(model.OrderAscending),
	}
	if v := values.Get("table_name"); v != "" {
		q.TableName = v
	}
	if v := values.Get("order"); v != "" {
		q.Order = strings.ToLower(v)
	}

	details := []validationDetail{}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, validationDetail{
				Loc: []string{"query", "limit"},
				Msg: "value is not a valid integer",
			})
		} else {
			q.Limit = limit
		}
	}

	err := s.validate.Struct(q)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details = append(details, validationDetail{
				Loc: []string{"query", queryName(fe.Field())},
				Msg: validationMessage(fe),
			})
		}
	}

	if len(details) > 0 {
		return nil, details
	}
	return q, nil
}

func queryName(field string) string {
	switch field {
	case "TableName":
		return "table_name"
	case "Limit":
		return "limit"
	case "Order":
		return "order"
	}
	return strings.ToLower(field)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("ensure this value is greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("ensure this value is less than or equal to %s", fe.Param())
	case "max":
		return fmt.Sprintf("ensure this value has at most %s characters", fe.Param())
	case "oneof":
		return "unexpected value; permitted: 'asc', 'desc'"
	case "required":
		return "field required"
	}
	return fe.Error()
}

func (s *Server) handleDelays(w http.ResponseWriter, r *http.Request) {
	q, details := s.parseDelaysQuery(r)
	if details != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: details})
		return
	}

	// Validated above.
	order, _ := model.ParseOrder(q.Order)

	s.logger.Info("delays endpoint accessed", "table", q.TableName, "limit", q.Limit, "order", order)

	start := time.Now()
	result, err := s.manager.AverageDelayByStation(r.Context(), q.TableName, q.Limit, order)
	elapsed := time.Since(start)
	executionMS := math.Round(float64(elapsed.Microseconds())/10) / 100

	s.logger.Info("aggregation executed", "execution_time_ms", executionMS)

	resp := delaysResponse{
		Method:          "aggregate",
		ExecutionTimeMS: executionMS,
		TableName:       q.TableName,
		Limit:           q.Limit,
		Order:           order,
		Description:     fmt.Sprintf("Top %d %s stations", q.Limit, order.Description()),
	}

	if err != nil {
		if errors.Is(err, delays.ErrInvalidLimit) || errors.Is(err, delays.ErrInvalidOrder) {
			s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: []validationDetail{{
				Loc: []string{"query"},
				Msg: err.Error(),
			}}})
			return
		}
		resp.Result = sourceErrorPayload(err)
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Result = result
	s.writeJSON(w, http.StatusOK, resp)
}
