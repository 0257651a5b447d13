package reference

import (
	"time"

	"ebdconsole.org/internal/access"
)

// Congregation is a sub-unit of a ministry.
type Congregation struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MinistryID string `json:"ministry_id"`
}

// Class is a teaching group inside a congregation.
type Class struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MinistryID     string `json:"ministry_id"`
	CongregationID string `json:"congregation_id"`
	AgeMin         *int   `json:"age_min,omitempty"`
	AgeMax         *int   `json:"age_max,omitempty"`
}

// Snapshot is the reference data visible under one scope. Snapshots are
// replaced whole, never merged.
type Snapshot struct {
	Scope         access.Scope   `json:"scope"`
	Congregations []Congregation `json:"congregations"`
	Classes       []Class        `json:"classes"`
	Version       uint64         `json:"version"`
	LoadedAt      time.Time      `json:"loaded_at"`
}

// Congregation looks up a congregation by id.
func (s Snapshot) Congregation(id string) (Congregation, bool) {
	for _, c := range s.Congregations {
		if c.ID == id {
			return c, true
		}
	}
	return Congregation{}, false
}

// Class looks up a class by id.
func (s Snapshot) Class(id string) (Class, bool) {
	for _, c := range s.Classes {
		if c.ID == id {
			return c, true
		}
	}
	return Class{}, false
}

// ClassesOf lists the classes of a congregation.
func (s Snapshot) ClassesOf(congregationID string) []Class {
	var out []Class
	for _, c := range s.Classes {
		if c.CongregationID == congregationID {
			out = append(out, c)
		}
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Congregations = append([]Congregation(nil), s.Congregations...)
	out.Classes = make([]Class, len(s.Classes))
	for i, c := range s.Classes {
		out.Classes[i] = c
		if c.AgeMin != nil {
			v := *c.AgeMin
			out.Classes[i].AgeMin = &v
		}
		if c.AgeMax != nil {
			v := *c.AgeMax
			out.Classes[i].AgeMax = &v
		}
	}
	return out
}

// Hints carry the display names the identity provider includes with the
// identity, used when entities are synthesized instead of fetched.
type Hints struct {
	CongregationName string
	ClassName        string
}

// HintsFor extracts hints from an identity.
func HintsFor(identity access.Identity) Hints {
	return Hints{CongregationName: identity.CongregationName, ClassName: identity.ClassName}
}
