// Package dashboard composes the statistics screen: it fetches per-entity
// rows from the aggregation backend, narrows them to one entity when asked
// and derives the chart, totals and ratio cards.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/series"
)

// ErrNarrowOutsideScope is returned when the requested narrowing entity is not
// one the caller's tier may select.
var ErrNarrowOutsideScope = errors.New("narrow target outside scope")

// Request selects what to plot.
type Request struct {
	Range  report.DateRange
	Metric report.Metric
	Narrow string
}

// Card is one membership ratio tile.
type Card struct {
	EntityID string  `json:"entityId"`
	Name     string  `json:"name"`
	Members  float64 `json:"members"`
	Enrolled float64 `json:"enrolled"`
	Ratio    float64 `json:"ratio"`
}

// View is everything the dashboard renders.
type View struct {
	Range                string             `json:"range"`
	Metric               report.Metric      `json:"metric"`
	Narrow               string             `json:"narrow,omitempty"`
	Rows                 []series.MetricRow `json:"rows"`
	Chart                series.Chart       `json:"chart"`
	Total                float64            `json:"total"`
	AttendancePercentage float64            `json:"attendancePercentage"`
	Cards                []Card             `json:"cards"`
}

type Service struct {
	backend report.Service
}

func New(backend report.Service) *Service { return &Service{backend: backend} }

// Build fetches and shapes the dashboard for scope. snap must be the
// caller's reference snapshot; narrowing targets are validated against it.
func (s *Service) Build(ctx context.Context, scope access.Scope, snap reference.Snapshot, req Request) (View, error) {
	if !scope.Valid() {
		return View{}, fmt.Errorf("%w: scope %s", access.ErrIncompleteIdentity, scope)
	}
	if req.Metric == "" {
		req.Metric = report.MetricPresent
	}
	if !req.Metric.Valid() {
		return View{}, fmt.Errorf("%w: %q", report.ErrInvalidMetric, req.Metric)
	}
	if err := req.Range.Validate(); err != nil {
		return View{}, err
	}
	narrow, err := Narrowing(scope, snap, req.Narrow)
	if err != nil {
		return View{}, err
	}

	results, err := s.fetch(ctx, scope, req.Range, req.Metric, report.MetricPresent, report.MetricEnrolled)
	if err != nil {
		return View{}, err
	}

	shape := func(m report.Metric) []series.MetricRow {
		if narrow != "" {
			return series.Reshape(results[m].TotalsByMetric, narrow)
		}
		return series.Pick(results[m].TotalsByMetric, visibleEntities(scope, snap))
	}
	rows := shape(req.Metric)
	present := shape(report.MetricPresent)
	enrolled := shape(report.MetricEnrolled)

	return View{
		Range:                req.Range.String(),
		Metric:               req.Metric,
		Narrow:               narrow,
		Rows:                 rows,
		Chart:                series.BuildChart(rows),
		Total:                series.Sum(rows),
		AttendancePercentage: series.Percentage(present, enrolled),
		Cards:                cards(scope, snap, results[req.Metric].MembershipRatios, narrow),
	}, nil
}

// Narrowing returns the entity id rows are projected onto. A class secretary
// is always narrowed to their class; other tiers may pick one entity of the
// next level down that is present in their snapshot.
func Narrowing(scope access.Scope, snap reference.Snapshot, requested string) (string, error) {
	switch scope.Tier() {
	case access.TierClassSecretary:
		if requested != "" && requested != scope.ClassID {
			return "", fmt.Errorf("%w: %s", ErrNarrowOutsideScope, requested)
		}
		return scope.ClassID, nil
	case access.TierCongregationAdmin:
		if requested == "" {
			return "", nil
		}
		if c, ok := snap.Class(requested); ok && c.CongregationID == scope.CongregationID {
			return requested, nil
		}
	default:
		if requested == "" {
			return "", nil
		}
		if c, ok := snap.Congregation(requested); ok && c.MinistryID == scope.MinistryID {
			return requested, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNarrowOutsideScope, requested)
}

func (s *Service) fetch(ctx context.Context, scope access.Scope, r report.DateRange, metrics ...report.Metric) (map[report.Metric]report.Dashboard, error) {
	unique := make([]report.Metric, 0, len(metrics))
	seen := make(map[report.Metric]bool, len(metrics))
	for _, m := range metrics {
		if !seen[m] {
			seen[m] = true
			unique = append(unique, m)
		}
	}

	out := make([]report.Dashboard, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range unique {
		g.Go(func() error {
			d, err := s.backend.GetDashboard(gctx, scope, report.DashboardQuery{Range: r, Metric: m})
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res := make(map[report.Metric]report.Dashboard, len(unique))
	for i, m := range unique {
		res[m] = out[i]
	}
	return res, nil
}

// cards keeps only entities the snapshot knows at the tier's level so the
// backend cannot widen what the caller sees.
func cards(scope access.Scope, snap reference.Snapshot, ratios map[string]report.RatioRecord, narrow string) []Card {
	out := make([]Card, 0, len(ratios))
	for id, rec := range ratios {
		if narrow != "" && id != narrow {
			continue
		}
		name, ok := entityName(scope, snap, id)
		if !ok {
			continue
		}
		out = append(out, Card{EntityID: id, Name: name, Members: rec.Members, Enrolled: rec.Enrolled, Ratio: rec.Ratio()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// visibleEntities lists the ids the snapshot holds at the tier's level:
// congregations for the ministry tier, in-scope classes otherwise.
func visibleEntities(scope access.Scope, snap reference.Snapshot) []string {
	var ids []string
	if scope.Tier() == access.TierTenantOwner {
		for _, c := range snap.Congregations {
			ids = append(ids, c.ID)
		}
		return ids
	}
	for _, c := range snap.Classes {
		if _, ok := entityName(scope, snap, c.ID); ok {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func entityName(scope access.Scope, snap reference.Snapshot, id string) (string, bool) {
	if scope.Tier() == access.TierTenantOwner {
		c, ok := snap.Congregation(id)
		return c.Name, ok
	}
	c, ok := snap.Class(id)
	if !ok || !scope.Contains(c.CongregationID, c.ID) {
		return "", false
	}
	return c.Name, true
}
