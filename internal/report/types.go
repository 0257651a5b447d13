// Package report defines the Sunday report payload, the dashboard aggregates
// and the contract of the remote aggregation backend that produces them.
package report

import (
	"context"
	"fmt"
	"time"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/series"
)

// DateLayout is the wire format of report dates.
const DateLayout = "2006-01-02"

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Day returns the single-day range used for a Sunday report.
func Day(t time.Time) DateRange {
	d := truncateDay(t)
	return DateRange{From: d, To: d}
}

// ParseRange parses two DateLayout strings.
func ParseRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
	}
	r := DateRange{From: f, To: t}
	return r, r.Validate()
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: both ends required", ErrInvalidRange)
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, r.To.Format(DateLayout), r.From.Format(DateLayout))
	}
	return nil
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// ClassTotals is the per-class line of a Sunday report.
type ClassTotals struct {
	ClassID        string  `json:"classId"`
	ClassName      string  `json:"className"`
	CongregationID string  `json:"congregationId"`
	Enrolled       int     `json:"enrolled"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Visitors       int     `json:"visitors"`
	Bibles         int     `json:"bibles"`
	Magazines      int     `json:"magazines"`
	Offering       float64 `json:"offering"`
}

// GrandTotals sums ClassTotals across the report.
type GrandTotals struct {
	Classes   int     `json:"classes"`
	Enrolled  int     `json:"enrolled"`
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Visitors  int     `json:"visitors"`
	Bibles    int     `json:"bibles"`
	Magazines int     `json:"magazines"`
	Offering  float64 `json:"offering"`
}

// AttendancePercentage is present over enrolled on a 0..100 scale, 0 when
// nobody is enrolled.
func (g GrandTotals) AttendancePercentage() float64 {
	return 100 * series.Ratio(float64(g.Present), float64(g.Enrolled))
}

// Birthday is a student celebrating during the report week.
type Birthday struct {
	Name           string    `json:"name"`
	ClassID        string    `json:"classId"`
	CongregationID string    `json:"congregationId"`
	Date           time.Time `json:"date"`
}

// Payload is the consolidated Sunday report.
type Payload struct {
	Date      time.Time     `json:"date"`
	Classes   []ClassTotals `json:"classes"`
	Totals    *GrandTotals  `json:"totals,omitempty"`
	Birthdays []Birthday    `json:"birthdays"`
}

// Metric names a per-entity aggregate the dashboard can request.
type Metric string

const (
	MetricPresent  Metric = "present"
	MetricEnrolled Metric = "enrolled"
	MetricVisitors Metric = "visitors"
	MetricOffering Metric = "offering"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricPresent, MetricEnrolled, MetricVisitors, MetricOffering:
		return true
	}
	return false
}

// DashboardQuery selects one metric over a date range.
type DashboardQuery struct {
	Range  DateRange
	Metric Metric
}

// RatioRecord compares Sunday-school enrollment with church membership for
// one entity.
type RatioRecord struct {
	Members  float64 `json:"members"`
	Enrolled float64 `json:"enrolled"`
}

// Ratio is Enrolled/Members, 0 when there are no members.
func (r RatioRecord) Ratio() float64 { return series.Ratio(r.Enrolled, r.Members) }

// Dashboard holds pre-bucketed rows keyed by entity id.
type Dashboard struct {
	TotalsByMetric   []series.MetricRow     `json:"totalsByMetric"`
	MembershipRatios map[string]RatioRecord `json:"membershipRatios"`
}

// Service is the remote aggregation backend. Implementations return errors
// matching ErrTransientFetch for any backend failure.
type Service interface {
	GetReport(ctx context.Context, scope access.Scope, r DateRange) (Payload, error)
	GetDashboard(ctx context.Context, scope access.Scope, q DashboardQuery) (Dashboard, error)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
