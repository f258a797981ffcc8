// Package business derives venue prosperity indicators from the check-in
// journal and the restaurant/pub attribute files.
package business

import (
	"context"
	"sort"
	"time"

	"cityecon/internal/dataset"
	"cityecon/internal/metrics"
)

// Logger is the minimal logging interface used by the processor.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Processor computes the business analysis tables.
type Processor struct {
	Log Logger
}

func (p *Processor) logger() Logger {
	if p.Log == nil {
		return nopLogger{}
	}
	return p.Log
}

// Result carries the finalized business tables.
type Result struct {
	Trends           dataset.Table
	Performance      dataset.Table
	CustomerPatterns dataset.Table
}

// venueAttrKey matches the check-in join key: venue ids are only unique
// within a venue type (restaurant 442 and pub 442 can coexist).
type venueAttrKey struct {
	ID   int64
	Type string
}

// Process derives business_trends, venue_performance and customer_patterns.
//
// Check-ins without a usable venue or timestamp are skipped. Venues missing
// from the attribute files still appear in the trends with NULL occupancy and
// revenue columns; the attribute join is best-effort.
func (p *Processor) Process(ctx context.Context, checkins []dataset.CheckinRecord, venues []dataset.Venue) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	attrs := make(map[venueAttrKey]dataset.Venue, len(venues))
	for _, v := range venues {
		attrs[venueAttrKey{ID: v.ID, Type: v.Type}] = v
	}

	trends := p.buildTrends(checkins, attrs)
	performance := p.buildPerformance(checkins)
	patterns := p.buildCustomerPatterns(checkins)

	p.logger().Printf("stage=business checkins=%d trend_rows=%d performance_rows=%d pattern_rows=%d duration=%s",
		len(checkins), len(trends.Rows), len(performance.Rows), len(patterns.Rows),
		time.Since(start).Truncate(time.Millisecond))
	metrics.IncCounter("cityecon.business.checkins", float64(len(checkins)))

	return Result{Trends: trends, Performance: performance, CustomerPatterns: patterns}, nil
}

// buildTrends groups check-ins by (month, venue) and joins venue attributes.
func (p *Processor) buildTrends(checkins []dataset.CheckinRecord, attrs map[venueAttrKey]dataset.Venue) dataset.Table {
	type trendKey struct {
		Month string
		Venue venueAttrKey
	}
	type trendAgg struct {
		Visits   int64
		Visitors map[int64]struct{}
	}

	groups := make(map[trendKey]*trendAgg)
	for i := range checkins {
		c := &checkins[i]
		if !c.VenueID.Valid || !c.Timestamp.Valid {
			continue
		}
		k := trendKey{
			Month: dataset.MonthOf(c.Timestamp.Time),
			Venue: venueAttrKey{ID: c.VenueID.Int64, Type: c.VenueType},
		}
		g := groups[k]
		if g == nil {
			g = &trendAgg{Visitors: make(map[int64]struct{})}
			groups[k] = g
		}
		g.Visits++
		if c.ParticipantID.Valid {
			g.Visitors[c.ParticipantID.Int64] = struct{}{}
		}
	}

	keys := make([]trendKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Venue.ID != b.Venue.ID {
			return a.Venue.ID < b.Venue.ID
		}
		return a.Venue.Type < b.Venue.Type
	})

	t := dataset.Table{
		Name: "business_trends",
		Columns: []dataset.Column{
			{Name: "month", Type: "text"},
			{Name: "venueId", Type: "bigint"},
			{Name: "venueType", Type: "text"},
			{Name: "visit_count", Type: "bigint"},
			{Name: "unique_visitors", Type: "bigint"},
			{Name: "occupancy_rate", Type: "double"},
			{Name: "revenue_estimate", Type: "double"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]

		var occupancy, revenue any
		if v, ok := attrs[k.Venue]; ok {
			if v.MaxOccupancy.Valid && v.MaxOccupancy.Int64 > 0 {
				occupancy = float64(g.Visits) / float64(v.MaxOccupancy.Int64)
			}
			if v.Cost.Valid {
				revenue = float64(g.Visits) * v.Cost.Float64
			}
		}

		t.Rows = append(t.Rows, []any{
			k.Month,
			k.Venue.ID,
			k.Venue.Type,
			g.Visits,
			int64(len(g.Visitors)),
			occupancy,
			revenue,
		})
	}
	return t
}

// buildCustomerPatterns groups check-ins by venue and time slot: hour of day
// crossed with day of week (ISO numbering, Monday = 1 through Sunday = 7).
func (p *Processor) buildCustomerPatterns(checkins []dataset.CheckinRecord) dataset.Table {
	type patternKey struct {
		Venue venueAttrKey
		Hour  int64
		Day   int64
	}
	type patternAgg struct {
		Visits   int64
		Visitors map[int64]struct{}
	}

	groups := make(map[patternKey]*patternAgg)
	for i := range checkins {
		c := &checkins[i]
		if !c.VenueID.Valid || !c.Timestamp.Valid {
			continue
		}
		ts := c.Timestamp.Time.UTC()
		day := int64(ts.Weekday())
		if day == 0 {
			day = 7
		}
		k := patternKey{
			Venue: venueAttrKey{ID: c.VenueID.Int64, Type: c.VenueType},
			Hour:  int64(ts.Hour()),
			Day:   day,
		}
		g := groups[k]
		if g == nil {
			g = &patternAgg{Visitors: make(map[int64]struct{})}
			groups[k] = g
		}
		g.Visits++
		if c.ParticipantID.Valid {
			g.Visitors[c.ParticipantID.Int64] = struct{}{}
		}
	}

	keys := make([]patternKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Venue.ID != b.Venue.ID {
			return a.Venue.ID < b.Venue.ID
		}
		if a.Venue.Type != b.Venue.Type {
			return a.Venue.Type < b.Venue.Type
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Hour < b.Hour
	})

	t := dataset.Table{
		Name: "customer_patterns",
		Columns: []dataset.Column{
			{Name: "venueId", Type: "bigint"},
			{Name: "venueType", Type: "text"},
			{Name: "hour_of_day", Type: "bigint"},
			{Name: "day_of_week", Type: "bigint"},
			{Name: "visit_count", Type: "bigint"},
			{Name: "unique_visitors", Type: "bigint"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]
		t.Rows = append(t.Rows, []any{
			k.Venue.ID,
			k.Venue.Type,
			k.Hour,
			k.Day,
			g.Visits,
			int64(len(g.Visitors)),
		})
	}
	return t
}

// buildPerformance groups check-ins by venue over the whole observation
// window. A venue only ever seen on a single day has zero operation days and
// a NULL daily visit rate rather than a division blow-up.
func (p *Processor) buildPerformance(checkins []dataset.CheckinRecord) dataset.Table {
	type perfAgg struct {
		Visits     int64
		Customers  map[int64]struct{}
		FirstVisit time.Time
		LastVisit  time.Time
	}

	groups := make(map[venueAttrKey]*perfAgg)
	for i := range checkins {
		c := &checkins[i]
		if !c.VenueID.Valid || !c.Timestamp.Valid {
			continue
		}
		k := venueAttrKey{ID: c.VenueID.Int64, Type: c.VenueType}
		ts := c.Timestamp.Time

		g := groups[k]
		if g == nil {
			g = &perfAgg{Customers: make(map[int64]struct{}), FirstVisit: ts, LastVisit: ts}
			groups[k] = g
		}
		g.Visits++
		if c.ParticipantID.Valid {
			g.Customers[c.ParticipantID.Int64] = struct{}{}
		}
		if ts.Before(g.FirstVisit) {
			g.FirstVisit = ts
		}
		if ts.After(g.LastVisit) {
			g.LastVisit = ts
		}
	}

	keys := make([]venueAttrKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].Type < keys[j].Type
	})

	t := dataset.Table{
		Name: "venue_performance",
		Columns: []dataset.Column{
			{Name: "venueId", Type: "bigint"},
			{Name: "venueType", Type: "text"},
			{Name: "total_visits", Type: "bigint"},
			{Name: "unique_customers", Type: "bigint"},
			{Name: "first_visit", Type: "text"},
			{Name: "last_visit", Type: "text"},
			{Name: "operation_days", Type: "bigint"},
			{Name: "visits_per_customer", Type: "double"},
			{Name: "daily_visit_rate", Type: "double"},
		},
		Rows: make([][]any, 0, len(keys)),
	}
	for _, k := range keys {
		g := groups[k]
		operationDays := int64(g.LastVisit.Sub(g.FirstVisit) / (24 * time.Hour))

		var visitsPerCustomer, dailyRate any
		if len(g.Customers) > 0 {
			visitsPerCustomer = float64(g.Visits) / float64(len(g.Customers))
		}
		if operationDays > 0 {
			dailyRate = float64(g.Visits) / float64(operationDays)
		}

		t.Rows = append(t.Rows, []any{
			k.ID,
			k.Type,
			g.Visits,
			int64(len(g.Customers)),
			dataset.DayOf(g.FirstVisit),
			dataset.DayOf(g.LastVisit),
			operationDays,
			visitsPerCustomer,
			dailyRate,
		})
	}
	return t
}
