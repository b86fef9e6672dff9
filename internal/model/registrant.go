package model

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Group string

const (
	GroupArts     Group = "AR"
	GroupScience  Group = "SC"
	GroupCommerce Group = "CO"
)

// Groups lists the groups in display order.
var Groups = []Group{GroupArts, GroupScience, GroupCommerce}

var groupNames = map[Group]string{
	GroupArts:     "Arts",
	GroupScience:  "Science",
	GroupCommerce: "Commerce",
}

func (g Group) Valid() bool {
	_, ok := groupNames[g]
	return ok
}

// Name returns the long name of the group, e.g. "Science".
func (g Group) Name() string {
	return groupNames[g]
}

// ParseGroup accepts either a group code or its long name, case-insensitive.
func ParseGroup(s string) (Group, bool) {
	s = strings.TrimSpace(s)
	for g, name := range groupNames {
		if strings.EqualFold(s, string(g)) || strings.EqualFold(s, name) {
			return g, true
		}
	}
	return "", false
}

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

var Genders = []Gender{GenderMale, GenderFemale}

var genderCodes = map[Gender]string{
	GenderMale:   "B",
	GenderFemale: "G",
}

func (g Gender) Valid() bool {
	_, ok := genderCodes[g]
	return ok
}

// Code returns the single letter used inside registration ids.
func (g Gender) Code() string {
	return genderCodes[g]
}

func GenderFromCode(code string) (Gender, bool) {
	for g, c := range genderCodes {
		if c == code {
			return g, true
		}
	}
	return "", false
}

// ParseGender understands the stored names plus the spellings used by the
// student directory and by people typing into a chat.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "man", "boy", "b":
		return GenderMale, true
	case "female", "f", "woman", "girl", "g":
		return GenderFemale, true
	}
	return "", false
}

type Part string

const (
	PartTShirt Part = "T-Shirt"
	PartFood   Part = "Food"
	PartGift   Part = "Gift"
)

var Parts = []Part{PartTShirt, PartFood, PartGift}

func (p Part) Valid() bool {
	for _, known := range Parts {
		if p == known {
			return true
		}
	}
	return false
}

// ParsePart accepts a part name in any case, and "tshirt" or "shirt" for
// the T-shirt.
func ParsePart(s string) (Part, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "tshirt", "shirt", "t shirt":
		return PartTShirt, true
	}
	for _, p := range Parts {
		if strings.ToLower(string(p)) == s {
			return p, true
		}
	}
	return "", false
}

// TShirtSizes is the garment size enumeration in display order.
var TShirtSizes = []string{"XS", "S", "M", "L", "XL", "XXL", "3XL", "4XL"}

// NormalizeSize upper-cases s and maps 2XL to XXL. ok is false when the
// result is not one of TShirtSizes.
func NormalizeSize(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "2XL" {
		s = "XXL"
	}
	for _, size := range TShirtSizes {
		if s == size {
			return s, true
		}
	}
	return s, false
}

// Amount is a payment in whole currency units.
type Amount int

// ParseAmount parses a non-negative integer amount.
func ParseAmount(s string) (Amount, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, false
	}
	return Amount(v), true
}

// UnmarshalJSON accepts numbers and numeric strings. Anything else decodes
// to zero instead of failing the whole document.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if v, ok := ParseAmount(s); ok {
		*a = v
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		*a = 0
		return nil
	}
	*a = Amount(int(f))
	return nil
}

// DateLayout is the display format of registration_date.
const DateLayout = "02 January 2006"

type Registrant struct {
	Name             string `json:"name"`
	Roll             string `json:"roll"`
	Gender           Gender `json:"gender"`
	Group            Group  `json:"group"`
	RegistrationDate string `json:"registration_date"`
	RegistrationID   string `json:"registration_id"`
	Photo            string `json:"photo"`
	Revoked          bool   `json:"revoked"`
	ReferredBy       string `json:"referred_by"`
	Paid             Amount `json:"paid"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	PartsAvailable   []Part `json:"parts_available"`
	TShirtSize       string `json:"tshirt_size"`

	// keys present in the stored document that this version does not know
	extra map[string]json.RawMessage
}

type registrantJSON Registrant

var knownKeys = []string{
	"name", "roll", "gender", "group", "registration_date", "registration_id",
	"photo", "revoked", "referred_by", "paid", "email", "phone",
	"parts_available", "tshirt_size",
}

func (r Registrant) MarshalJSON() ([]byte, error) {
	a := registrantJSON(r)
	if a.PartsAvailable == nil {
		a.PartsAvailable = []Part{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(r.extra) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(r.extra))
	for k := range r.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out = out[:len(out)-1]
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, ',')
		out = append(out, name...)
		out = append(out, ':')
		out = append(out, r.extra[k]...)
	}
	return append(out, '}'), nil
}

func (r *Registrant) UnmarshalJSON(data []byte) error {
	var a registrantJSON
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	*r = Registrant(a)
	if len(all) > 0 {
		r.extra = all
	}
	return nil
}

// Clone returns a deep copy of r.
func (r Registrant) Clone() Registrant {
	c := r
	if r.PartsAvailable != nil {
		c.PartsAvailable = append([]Part(nil), r.PartsAvailable...)
	}
	if r.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(r.extra))
		for k, v := range r.extra {
			c.extra[k] = v
		}
	}
	return c
}

func (r Registrant) HasPart(p Part) bool {
	for _, have := range r.PartsAvailable {
		if have == p {
			return true
		}
	}
	return false
}

// RegisteredOn parses RegistrationDate. Legacy records carry a few different
// layouts, and some carry none at all.
func (r Registrant) RegisteredOn() (time.Time, bool) {
	s := strings.TrimSpace(r.RegistrationDate)
	for _, layout := range []string{DateLayout, "2 January 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RegistrantInput is the data a caller supplies to create a registrant.
// RegistrationID is optional; it is allocated when empty.
type RegistrantInput struct {
	Name           string
	Roll           string
	Gender         Gender
	Group          Group
	RegistrationID string
	Email          string
	Phone          string
	Photo          string
	ReferredBy     string
	Paid           Amount
	Parts          []Part
	TShirtSize     string
}

// RegistrantPatch holds the fields to overwrite on update. Nil fields are
// left alone. Paid is the raw text the user typed.
type RegistrantPatch struct {
	Name       *string
	Roll       *string
	Gender     *Gender
	Group      *Group
	Email      *string
	Phone      *string
	Photo      *string
	ReferredBy *string
	Paid       *string
	Parts      *[]Part
	TShirtSize *string
	Revoked    *bool
}
