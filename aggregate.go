package delays

import (
	"fmt"
	"math"
	"sort"

	"tgvtracker.dev/delays/model"
)

const (
	MessageNoData        = "No National service data found"
	MessageNoValidDelays = "No valid delay values found"
)

// Result of aggregating delay records by origin station.
type Result struct {
	Data          []model.StationAggregate `json:"data"`
	Count         int                      `json:"count"`
	TableName     string                   `json:"table_name,omitempty"`
	Order         model.Order              `json:"order"`
	ServiceFilter string                   `json:"service_filter,omitempty"`
	Description   string                   `json:"description,omitempty"`

	// Set when Data is empty, explaining why.
	Message string `json:"message,omitempty"`
}

type stationGroup struct {
	station string
	sum     float64
	n       int

	// Running mean, used when sum overflows.
	mean float64
}

func (g *stationGroup) add(delay float64) {
	g.n++
	g.sum += delay
	n := float64(g.n)
	g.mean += delay/n - g.mean/n
}

func (g *stationGroup) average() float64 {
	if avg := g.sum / float64(g.n); !math.IsInf(avg, 0) && !math.IsNaN(avg) {
		return avg
	}
	return g.mean
}

// Computes the mean delay per origin station, sorted by that mean
// and truncated to limit.
//
// Records with no usable delay value are ignored. A station left
// with no usable values is dropped entirely, and limit applies after
// that. Stations with equal means keep the order in which they first
// appear in records. A limit below 1 means no limit.
func Aggregate(records []model.DelayRecord, order model.Order, limit int) *Result {
	result := &Result{
		Data:  []model.StationAggregate{},
		Order: order,
	}

	if len(records) == 0 {
		result.Message = MessageNoData
		return result
	}

	groups := []*stationGroup{}
	byStation := map[string]*stationGroup{}
	for _, rec := range records {
		if rec.OriginStation == "" {
			continue
		}
		g, found := byStation[rec.OriginStation]
		if !found {
			g = &stationGroup{station: rec.OriginStation}
			byStation[rec.OriginStation] = g
			groups = append(groups, g)
		}
		if rec.AverageDelay == nil {
			continue
		}
		g.add(*rec.AverageDelay)
	}

	for _, g := range groups {
		if g.n == 0 {
			continue
		}
		result.Data = append(result.Data, model.StationAggregate{
			Station:   g.station,
			MeanDelay: g.average(),
		})
	}

	ascending := order.Ascending()
	sort.SliceStable(result.Data, func(i, j int) bool {
		if ascending {
			return result.Data[i].MeanDelay < result.Data[j].MeanDelay
		}
		return result.Data[i].MeanDelay > result.Data[j].MeanDelay
	})

	if limit > 0 && len(result.Data) > limit {
		result.Data = result.Data[:limit]
	}

	result.Count = len(result.Data)
	if result.Count == 0 {
		result.Message = MessageNoValidDelays
	}

	return result
}

func describe(limit int, service string, order model.Order) string {
	return fmt.Sprintf("Top %d %s service stations with %s average delays", limit, service, order.Adjective())
}
