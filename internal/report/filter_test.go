package report

import (
	"errors"
	"testing"
	"time"

	"ebdconsole.org/internal/access"
)

func samplePayload() Payload {
	return Payload{
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Classes: []ClassTotals{
			{ClassID: "A", CongregationID: "c1", Enrolled: 10, Present: 8, Offering: 12.5},
			{ClassID: "B", CongregationID: "c1", Enrolled: 6, Present: 3},
			{ClassID: "C", CongregationID: "c2", Enrolled: 4, Present: 4, Visitors: 2},
		},
		Totals: &GrandTotals{Classes: 3, Enrolled: 20, Present: 15, Visitors: 2, Offering: 12.5},
		Birthdays: []Birthday{
			{Name: "Ana", ClassID: "A", CongregationID: "c1"},
			{Name: "Rui", ClassID: "C", CongregationID: "c2"},
		},
	}
}

func TestFilterClassTierKeepsOwnClassOnly(t *testing.T) {
	got := Filter(samplePayload(), access.Scope{MinistryID: "m1", CongregationID: "c1", ClassID: "A"})
	if len(got.Classes) != 1 || got.Classes[0].ClassID != "A" {
		t.Fatalf("unexpected classes: %+v", got.Classes)
	}
	if len(got.Birthdays) != 1 || got.Birthdays[0].Name != "Ana" {
		t.Fatalf("unexpected birthdays: %+v", got.Birthdays)
	}
	if got.Totals == nil || got.Totals.Enrolled != 10 || got.Totals.Classes != 1 {
		t.Fatalf("totals leaked filtered data: %+v", got.Totals)
	}
}

func TestFilterOwnerKeepsBackendTotals(t *testing.T) {
	p := samplePayload()
	p.Totals.Bibles = 99
	got := Filter(p, access.Scope{MinistryID: "m1"})
	if len(got.Classes) != 3 {
		t.Fatalf("expected all classes, got %d", len(got.Classes))
	}
	if got.Totals.Bibles != 99 {
		t.Fatalf("backend totals should be kept when nothing is filtered: %+v", got.Totals)
	}
}

func TestTotalizeWhenBackendOmitsTotals(t *testing.T) {
	p := samplePayload()
	p.Totals = nil
	got := Filter(p, access.Scope{MinistryID: "m1", CongregationID: "c1"})
	if got.Totals.Present != 11 || got.Totals.Enrolled != 16 {
		t.Fatalf("unexpected totals %+v", got.Totals)
	}
	if pct := got.Totals.AttendancePercentage(); pct != 68.75 {
		t.Fatalf("AttendancePercentage=%v", pct)
	}
	if (GrandTotals{}).AttendancePercentage() != 0 {
		t.Fatal("empty totals must read as 0%")
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("ParseRange: %v", err)
	}
	if r.String() != "2026-01-01..2026-01-31" {
		t.Fatalf("unexpected range %s", r)
	}
	if _, err := ParseRange("2026-02-01", "2026-01-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := ParseRange("yesterday", "2026-01-01"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
