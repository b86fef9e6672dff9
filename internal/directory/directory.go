// Package directory looks up college students by class roll in a JSON
// export of the student list.
package directory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"go.uber.org/zap"

	"registrar/internal/model"
)

// Student is a directory entry mapped onto registrant fields. Gender and
// Group are empty when the export holds a value we do not know.
type Student struct {
	Name   string
	Gender model.Gender
	Group  model.Group
	Phone  string
}

type entry struct {
	Roll   json.RawMessage `json:"class_roll"`
	Name   string          `json:"student_name_en"`
	Gender string          `json:"gender"`
	Group  string          `json:"group"`
	Phone  string          `json:"student_phone"`
}

type Directory struct {
	students map[string]Student
}

var genders = map[string]model.Gender{
	"man":   model.GenderMale,
	"woman": model.GenderFemale,
}

var groups = map[string]model.Group{
	"science":  model.GroupScience,
	"arts":     model.GroupArts,
	"commerce": model.GroupCommerce,
}

// Load reads the export at path. Rolls may be JSON strings or numbers.
func Load(path string, logger *zap.Logger) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read student directory: %w", err)
	}
	d, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("student directory loaded", zap.String("path", path), zap.Int("students", d.Len()))
	return d, nil
}

func Parse(raw []byte) (*Directory, error) {
	var entries []entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode student directory: %w", err)
	}
	title := cases.Title(language.Und)
	d := &Directory{students: make(map[string]Student, len(entries))}
	for _, e := range entries {
		roll := strings.Trim(strings.TrimSpace(string(e.Roll)), `"`)
		roll = strings.TrimSpace(roll)
		if roll == "" || roll == "null" {
			continue
		}
		d.students[roll] = Student{
			Name:   title.String(strings.TrimSpace(e.Name)),
			Gender: genders[strings.ToLower(strings.TrimSpace(e.Gender))],
			Group:  groups[strings.ToLower(strings.TrimSpace(e.Group))],
			Phone:  strings.TrimSpace(e.Phone),
		}
	}
	return d, nil
}

func (d *Directory) Len() int {
	return len(d.students)
}

func (d *Directory) Lookup(roll string) (Student, bool) {
	s, ok := d.students[strings.TrimSpace(roll)]
	return s, ok
}

// Fill copies the student's details into the empty fields of in.
func (s Student) Fill(in *model.RegistrantInput) {
	if in.Name == "" {
		in.Name = s.Name
	}
	if in.Gender == "" {
		in.Gender = s.Gender
	}
	if in.Group == "" {
		in.Group = s.Group
	}
	if in.Phone == "" {
		in.Phone = s.Phone
	}
}
