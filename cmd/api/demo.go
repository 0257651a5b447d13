package main

import (
	"time"

	"ebdconsole.org/internal/reference"
	"ebdconsole.org/internal/report"
	"ebdconsole.org/internal/series"
)

// demoBackends returns a seeded store and report fixture matching the demo
// seed in internal/migrate, with a report for the most recent Sunday.
func demoBackends(now time.Time) (*reference.InMemoryStore, *report.Fixture) {
	store := reference.NewInMemoryStore()
	for _, c := range []reference.Congregation{
		{ID: "c-central", Name: "Sede", MinistryID: "m-demo"},
		{ID: "c-norte", Name: "Congregação Norte", MinistryID: "m-demo"},
	} {
		store.PutCongregation(c)
	}
	classes := []reference.Class{
		{ID: "k-adultos", Name: "Adultos", MinistryID: "m-demo", CongregationID: "c-central", AgeMin: intPtr(18)},
		{ID: "k-jovens", Name: "Jovens", MinistryID: "m-demo", CongregationID: "c-central", AgeMin: intPtr(15), AgeMax: intPtr(17)},
		{ID: "k-juniores", Name: "Juniores", MinistryID: "m-demo", CongregationID: "c-norte", AgeMin: intPtr(9), AgeMax: intPtr(11)},
	}
	for _, c := range classes {
		store.PutClass(c)
	}

	sunday := now.Truncate(24 * time.Hour)
	for sunday.Weekday() != time.Sunday {
		sunday = sunday.AddDate(0, 0, -1)
	}
	fixture := report.NewFixture()
	for _, c := range []string{"c-central", "c-norte"} {
		fixture.PutCongregation(c, "m-demo")
	}
	for _, c := range classes {
		fixture.PutClass(c.ID, c.MinistryID, c.CongregationID)
	}
	fixture.PutReport(report.Payload{
		Date: sunday,
		Classes: []report.ClassTotals{
			{ClassID: "k-adultos", ClassName: "Adultos", CongregationID: "c-central", Enrolled: 32, Present: 27, Absent: 5, Visitors: 3, Bibles: 25, Magazines: 22, Offering: 184.5},
			{ClassID: "k-jovens", ClassName: "Jovens", CongregationID: "c-central", Enrolled: 18, Present: 12, Absent: 6, Visitors: 4, Bibles: 10, Magazines: 9, Offering: 41},
			{ClassID: "k-juniores", ClassName: "Juniores", CongregationID: "c-norte", Enrolled: 14, Present: 11, Absent: 3, Visitors: 1, Bibles: 8, Magazines: 11, Offering: 12.25},
		},
		Birthdays: []report.Birthday{
			{Name: "Ana Souza", ClassID: "k-jovens", CongregationID: "c-central", Date: sunday.AddDate(0, 0, 2)},
		},
	})

	months := []string{"Jan", "Feb", "Mar"}
	byMetric := map[report.Metric][3][3]float64{
		report.MetricPresent:  {{24, 10, 9}, {26, 12, 11}, {27, 12, 11}},
		report.MetricEnrolled: {{32, 18, 14}, {32, 18, 14}, {32, 18, 14}},
		report.MetricVisitors: {{2, 5, 0}, {1, 3, 2}, {3, 4, 1}},
		report.MetricOffering: {{150, 30, 10}, {170, 38, 11}, {184.5, 41, 12.25}},
	}
	for metric, values := range byMetric {
		rows := make([]series.MetricRow, 0, len(months))
		for i, month := range months {
			rows = append(rows, series.Row(month,
				"k-adultos", values[i][0],
				"k-jovens", values[i][1],
				"k-juniores", values[i][2],
				"c-central", values[i][0]+values[i][1],
				"c-norte", values[i][2],
			))
		}
		fixture.PutDashboard(metric, report.Dashboard{
			TotalsByMetric: rows,
			MembershipRatios: map[string]report.RatioRecord{
				"k-adultos":  {Members: 40, Enrolled: 32},
				"k-jovens":   {Members: 25, Enrolled: 18},
				"k-juniores": {Members: 20, Enrolled: 14},
				"c-central":  {Members: 65, Enrolled: 50},
				"c-norte":    {Members: 20, Enrolled: 14},
			},
		})
	}
	return store, fixture
}

func intPtr(v int) *int { return &v }
