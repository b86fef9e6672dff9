// Package regid allocates and parses registration ids of the form
// <GROUP>-<GENDER_CODE>-<SEQ>, e.g. SC-B-0001.
package regid

import (
	"fmt"
	"strconv"
	"strings"

	"registrar/internal/domain"
	"registrar/internal/model"
)

const sep = "-"

// Parsed is the group and gender recovered from an id.
type Parsed struct {
	Group      model.Group
	GenderCode string
	Gender     model.Gender
}

func Make(group model.Group, genderCode string, n int) string {
	return fmt.Sprintf("%s%s%s%s%04d", group, sep, genderCode, sep, n)
}

func Prefix(group model.Group, gender model.Gender) string {
	return string(group) + sep + gender.Code() + sep
}

// Next returns the id following the highest sequence number already used
// for (group, gender) in records. Gaps are never reused. Ids with a
// malformed suffix are ignored.
func Next(records []model.Registrant, group model.Group, gender model.Gender) (string, error) {
	if !group.Valid() {
		return "", domain.Validation("unknown group %q", group)
	}
	if !gender.Valid() {
		return "", domain.Validation("unknown gender %q", gender)
	}

	prefix := Prefix(group, gender)
	highest := 0
	for _, r := range records {
		if !strings.HasPrefix(r.RegistrationID, prefix) {
			continue
		}
		n, ok := Seq(r.RegistrationID)
		if !ok {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return Make(group, gender.Code(), highest+1), nil
}

// Seq returns the numeric suffix of id.
func Seq(id string) (int, bool) {
	i := strings.LastIndex(id, sep)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Parse recovers the group and gender encoded in id. ok is false when either
// segment is missing or not recognized.
func Parse(id string) (Parsed, bool) {
	parts := strings.Split(id, sep)
	if len(parts) < 2 {
		return Parsed{}, false
	}
	group := model.Group(parts[0])
	if !group.Valid() {
		return Parsed{}, false
	}
	gender, ok := model.GenderFromCode(parts[1])
	if !ok {
		return Parsed{}, false
	}
	return Parsed{Group: group, GenderCode: parts[1], Gender: gender}, true
}
