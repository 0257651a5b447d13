package report

import (
	"context"
	"sync"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/series"
)

// Fixture is an in-process Service backed by canned data. It serves local
// runs without an aggregation backend and the tests of dependent packages.
type Fixture struct {
	mu         sync.Mutex
	reports    map[string]Payload
	dashboards map[Metric]Dashboard
	entities   map[string]entity
	err        error
	calls      int
}

// entity places a dashboard key in the ministry hierarchy. Congregation
// keys have no class.
type entity struct {
	ministryID     string
	congregationID string
	classID        string
}

var _ Service = (*Fixture)(nil)

func NewFixture() *Fixture {
	return &Fixture{
		reports:    map[string]Payload{},
		dashboards: map[Metric]Dashboard{},
		entities:   map[string]entity{},
	}
}

// PutCongregation declares key as a congregation-level dashboard entity.
func (f *Fixture) PutCongregation(key, ministryID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[key] = entity{ministryID: ministryID, congregationID: key}
}

// PutClass declares key as a class-level dashboard entity.
func (f *Fixture) PutClass(key, ministryID, congregationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[key] = entity{ministryID: ministryID, congregationID: congregationID, classID: key}
}

// PutReport registers the payload returned for its date.
func (f *Fixture) PutReport(p Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[p.Date.Format(DateLayout)] = p
}

// PutDashboard registers the dashboard returned for a metric.
func (f *Fixture) PutDashboard(m Metric, d Dashboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dashboards[m] = d
}

// Fail makes every following call return err; nil clears it.
func (f *Fixture) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls reports how many requests were served.
func (f *Fixture) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fixture) GetReport(ctx context.Context, scope access.Scope, r DateRange) (Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Payload{}, &FetchError{Method: "report", Err: f.err}
	}
	if err := ctx.Err(); err != nil {
		return Payload{}, &FetchError{Method: "report", Err: err}
	}
	p, ok := f.reports[r.From.Format(DateLayout)]
	if !ok {
		return Payload{}, ErrReportNotFound
	}
	return p, nil
}

func (f *Fixture) GetDashboard(ctx context.Context, scope access.Scope, q DashboardQuery) (Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Dashboard{}, &FetchError{Method: "dashboard", Err: f.err}
	}
	if err := ctx.Err(); err != nil {
		return Dashboard{}, &FetchError{Method: "dashboard", Err: err}
	}
	d := f.dashboards[q.Metric]
	rows := make([]series.MetricRow, 0, len(d.TotalsByMetric))
	for _, row := range d.TotalsByMetric {
		out := series.MetricRow{Bucket: row.Bucket, Values: make(map[string]float64, len(row.Values))}
		for k, v := range row.Values {
			if f.visibleLocked(scope, k) {
				out.Values[k] = v
			}
		}
		rows = append(rows, out)
	}
	ratios := make(map[string]RatioRecord, len(d.MembershipRatios))
	for k, v := range d.MembershipRatios {
		if f.visibleLocked(scope, k) {
			ratios[k] = v
		}
	}
	return Dashboard{TotalsByMetric: rows, MembershipRatios: ratios}, nil
}

// visibleLocked applies the backend's scope rule: the ministry tier gets its
// congregations, lower tiers get the classes inside their scope. Undeclared
// keys are never returned.
func (f *Fixture) visibleLocked(scope access.Scope, key string) bool {
	e, ok := f.entities[key]
	if !ok || e.ministryID != scope.MinistryID {
		return false
	}
	if scope.Tier() == access.TierTenantOwner {
		return e.classID == ""
	}
	return e.classID != "" && scope.Contains(e.congregationID, e.classID)
}
