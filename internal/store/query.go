package store

import (
	"strings"

	"registrar/internal/model"
	"registrar/internal/regid"
)

// Read returns a copy of the registrant with the given id.
func (s *Store) Read(id string) (model.Registrant, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.records[i].Clone(), true
	}
	return model.Registrant{}, false
}

func (s *Store) ReadByRoll(roll string) (model.Registrant, bool) {
	if i := s.indexByRoll(roll); i >= 0 {
		return s.records[i].Clone(), true
	}
	return model.Registrant{}, false
}

// SearchByName returns registrants whose name contains query, ignoring case.
func (s *Store) SearchByName(query string) []model.Registrant {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []model.Registrant
	for _, r := range s.records {
		if strings.Contains(strings.ToLower(r.Name), query) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *Store) Records() []model.Registrant {
	return s.cloneRecords()
}

// NextID previews the id Create would allocate for (group, gender).
func (s *Store) NextID(group model.Group, gender model.Gender) (string, error) {
	return regid.Next(s.records, group, gender)
}

// Grouped indexes registrants by the group and gender encoded in their id.
type Grouped map[model.Group]map[model.Gender][]model.Registrant

type Bucket struct {
	Group       model.Group
	Gender      model.Gender
	Registrants []model.Registrant
}

// Grouped skips registrants whose id does not parse.
func (s *Store) Grouped() Grouped {
	out := Grouped{}
	for _, r := range s.records {
		p, ok := regid.Parse(r.RegistrationID)
		if !ok {
			continue
		}
		if out[p.Group] == nil {
			out[p.Group] = map[model.Gender][]model.Registrant{}
		}
		out[p.Group][p.Gender] = append(out[p.Group][p.Gender], r.Clone())
	}
	return out
}

// Buckets returns the non-empty buckets in display order.
func (g Grouped) Buckets() []Bucket {
	var out []Bucket
	for _, group := range model.Groups {
		for _, gender := range model.Genders {
			if rs := g[group][gender]; len(rs) > 0 {
				out = append(out, Bucket{Group: group, Gender: gender, Registrants: rs})
			}
		}
	}
	return out
}

type GroupStats struct {
	Total   int
	Genders map[model.Gender]int
}

type Stats struct {
	Total         int
	Active        int
	Revoked       int
	TotalPayments int
	Groups        map[model.Group]GroupStats
}

// Statistics counts every record in the flat totals. Per-group counts come
// from Grouped and so leave out ids that do not parse.
func (s *Store) Statistics() Stats {
	st := Stats{Groups: map[model.Group]GroupStats{}}
	for _, r := range s.records {
		st.Total++
		if r.Revoked {
			st.Revoked++
		} else {
			st.Active++
		}
		st.TotalPayments += int(r.Paid)
	}
	for group, genders := range s.Grouped() {
		gs := GroupStats{Genders: map[model.Gender]int{}}
		for gender, rs := range genders {
			gs.Genders[gender] = len(rs)
			gs.Total += len(rs)
		}
		st.Groups[group] = gs
	}
	return st
}
