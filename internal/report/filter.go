package report

import "ebdconsole.org/internal/access"

// Totalize recomputes grand totals from the class lines.
func Totalize(classes []ClassTotals) GrandTotals {
	var g GrandTotals
	for _, c := range classes {
		g.Classes++
		g.Enrolled += c.Enrolled
		g.Present += c.Present
		g.Absent += c.Absent
		g.Visitors += c.Visitors
		g.Bibles += c.Bibles
		g.Magazines += c.Magazines
		g.Offering += c.Offering
	}
	return g
}

// Filter keeps only the classes and birthdays inside scope. Totals are
// recomputed whenever the backend omitted them or a line was dropped, so they
// never include data the caller may not see.
func Filter(p Payload, scope access.Scope) Payload {
	out := Payload{Date: p.Date}
	for _, c := range p.Classes {
		if scope.Contains(c.CongregationID, c.ClassID) {
			out.Classes = append(out.Classes, c)
		}
	}
	for _, b := range p.Birthdays {
		if scope.Contains(b.CongregationID, b.ClassID) {
			out.Birthdays = append(out.Birthdays, b)
		}
	}
	if p.Totals != nil && len(out.Classes) == len(p.Classes) {
		t := *p.Totals
		out.Totals = &t
	} else {
		t := Totalize(out.Classes)
		out.Totals = &t
	}
	return out
}
