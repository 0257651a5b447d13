package main

import (
	"context"
	"reflect"
	"testing"
	"time"

	"ebdconsole.org/internal/access"
	"ebdconsole.org/internal/dashboard"
	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/series"
)

func TestDemoDashboardStaysInScope(t *testing.T) {
	store, reports := demoBackends(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	rng, err := report.ParseRange("2026-01-01", "2026-03-31")
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}

	cases := []struct {
		name  string
		scope access.Scope
		keys  []string
		total float64
	}{
		{"owner", access.Scope{MinistryID: "m-demo"}, []string{"c-central", "c-norte"}, 142},
		{"congregation admin", access.Scope{MinistryID: "m-demo", CongregationID: "c-central"}, []string{"k-adultos", "k-jovens"}, 111},
		{"class secretary", access.Scope{MinistryID: "m-demo", CongregationID: "c-norte", ClassID: "k-juniores"}, []string{"k-juniores"}, 31},
	}
	for _, tc := range cases {
		snap, err := reference.NewCache(store).Load(context.Background(), tc.scope, reference.Hints{})
		if err != nil {
			t.Fatalf("%s: Load: %v", tc.name, err)
		}
		view, err := dashboard.New(reports).Build(context.Background(), tc.scope, snap, dashboard.Request{Range: rng})
		if err != nil {
			t.Fatalf("%s: Build: %v", tc.name, err)
		}
		if keys := series.Keys(view.Rows); !reflect.DeepEqual(keys, tc.keys) {
			t.Fatalf("%s: keys=%v, want %v", tc.name, keys, tc.keys)
		}
		if view.Total != tc.total {
			t.Fatalf("%s: total=%v, want %v", tc.name, view.Total, tc.total)
		}
	}
}

func TestDemoReportIsOnSunday(t *testing.T) {
	_, reports := demoBackends(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	day, _ := time.Parse(report.DateLayout, "2026-03-01")
	p, err := reports.GetReport(context.Background(), access.Scope{MinistryID: "m-demo"}, report.Day(day))
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if len(p.Classes) != 3 {
		t.Fatalf("classes=%d, want 3", len(p.Classes))
	}
}
