// Package importer pulls registrant fields out of free text pasted from
// chats and forms. Parsing never fails; fields that cannot be found are left
// empty.
package importer

import (
	"regexp"
	"strings"
	"unicode"

	"registrar/internal/model"
)

// RollPrefix is prepended to 5-digit rolls to form the full 13-digit roll.
const RollPrefix = "12024250"

const fullRollLen = 13

type Result struct {
	Name       string
	Email      string
	Phone      string
	Roll       string
	TShirtSize string
	Group      model.Group
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`[0-9+\- ]{6,20}`)
	// S, M and L count only after a size or shirt label; bare they are
	// too common inside ordinary text ("I'm", initials).
	labeledSizeRe = regexp.MustCompile(`(?i)(?:size|shirt)\s*(?:size)?\s*[:\-=]?\s*(4XL|3XL|2XL|XXL|XL|XS|L|M|S)(?:$|[^A-Za-z0-9'’])`)
	bareSizeRe    = regexp.MustCompile(`(?im)(?:^|[\s:(,])(4XL|3XL|2XL|XXL|XL|XS)(?:$|[\s.,;:)])`)
	digitRe       = regexp.MustCompile(`\d+`)

	labeledRollRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)roll(?:\s*(?:no\.?|number|#))?\s*[:\-=.]?\s*(\d{13})\b`),
		regexp.MustCompile(`(?i)roll(?:\s*(?:no\.?|number|#))?\s*[:\-=.]?\s*(\d{5})\b`),
		regexp.MustCompile(`(?i)roll(?:\s*(?:no\.?|number|#))?\s*[:\-=.]?\s*(\d{3})\b`),
	}

	labelPrefixRe = regexp.MustCompile(`(?i)^(?:name|roll|mail|email|e-mail|serial|tshirt|t-shirt|number|phone)\b\s*(?:no\.?|number)?\s*[:\-=.)]*\s*`)
	placeholderRe = regexp.MustCompile(`x{3,}|X{3,}|\*{3,}|#{3,}|\.{3,}|•{3,}`)
	candidateSep  = regexp.MustCompile(`[|,;/]`)
)

var labelWords = map[string]bool{
	"name": true, "roll": true, "mail": true, "email": true, "e-mail": true,
	"serial": true, "tshirt": true, "t-shirt": true, "number": true, "phone": true,
}

// group keywords in priority order
var groupKeywords = []struct {
	group    model.Group
	keywords []string
}{
	{model.GroupScience, []string{"science", "sci", "sc"}},
	{model.GroupArts, []string{"arts", "art"}},
	{model.GroupCommerce, []string{"commerce", "com"}},
}

// Parse extracts whatever it can find in text.
func Parse(text string) Result {
	var res Result
	res.Email = emailRe.FindString(text)

	withoutEmail := text
	if res.Email != "" {
		withoutEmail = strings.ReplaceAll(text, res.Email, " ")
	}
	res.Phone = findPhone(withoutEmail)
	res.TShirtSize = findSize(withoutEmail)

	raw := findRoll(withoutEmail)
	res.Roll = normalizeRoll(raw)
	if len(res.Roll) == fullRollLen {
		res.Group = groupFromRoll(res.Roll)
	}
	if res.Group == "" {
		res.Group = groupFromText(withoutEmail)
	}

	res.Name = findName(text, []string{res.Email, res.Phone, res.TShirtSize, res.Roll, raw})
	return res
}

// Fill copies found fields into in where in is still empty.
func (r Result) Fill(in *model.RegistrantInput) {
	fill := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
		}
	}
	fill(&in.Name, r.Name)
	fill(&in.Email, r.Email)
	fill(&in.Phone, r.Phone)
	fill(&in.Roll, r.Roll)
	fill(&in.TShirtSize, r.TShirtSize)
	if in.Group == "" && r.Group != "" {
		in.Group = r.Group
	}
}

// Empty reports whether nothing was found.
func (r Result) Empty() bool {
	return r == Result{}
}

func findPhone(text string) string {
	for _, candidate := range phoneRe.FindAllString(text, -1) {
		if p, ok := phoneDigits(candidate); ok {
			return p
		}
	}
	for _, run := range standaloneRuns(text) {
		if len(run) == 11 {
			return run
		}
	}
	return ""
}

func phoneDigits(candidate string) (string, bool) {
	var b strings.Builder
	for _, r := range candidate {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) > 11 && strings.HasPrefix(digits, "88") {
		digits = digits[2:]
	}
	return digits, len(digits) == 11
}

func findSize(text string) string {
	m := labeledSizeRe.FindStringSubmatch(text)
	if m == nil {
		m = bareSizeRe.FindStringSubmatch(text)
	}
	if m == nil {
		return ""
	}
	size, _ := model.NormalizeSize(m[1])
	return size
}

func findRoll(text string) string {
	for _, re := range labeledRollRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	runs := standaloneRuns(text)
	for _, n := range []int{13, 5, 3} {
		for _, run := range runs {
			if len(run) == n {
				return run
			}
		}
	}
	return ""
}

func normalizeRoll(raw string) string {
	if len(raw) == 5 {
		return RollPrefix + raw
	}
	return raw
}

// groupFromRoll reads the digit after RollPrefix. A "00" block after it is a
// placeholder and says nothing about the group.
func groupFromRoll(roll string) model.Group {
	if !strings.HasPrefix(roll, RollPrefix) {
		return ""
	}
	rest := roll[len(RollPrefix):]
	if len(rest) < 3 || rest[1:3] == "00" {
		return ""
	}
	switch rest[0] {
	case '1':
		return model.GroupScience
	case '2':
		return model.GroupArts
	case '3':
		return model.GroupCommerce
	}
	return ""
}

func groupFromText(text string) model.Group {
	lower := strings.ToLower(text)
	for _, g := range groupKeywords {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.group
			}
		}
	}
	return ""
}

// standaloneRuns returns digit runs that are not glued to letters, other
// digits or the characters that build ids, emails and phone numbers.
func standaloneRuns(text string) []string {
	var out []string
	for _, loc := range digitRe.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && glued(rune(text[loc[0]-1])) {
			continue
		}
		if loc[1] < len(text) && glued(rune(text[loc[1]])) {
			continue
		}
		out = append(out, text[loc[0]:loc[1]])
	}
	return out
}

func glued(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-+@_", r))
}

func findName(text string, found []string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if name, ok := nameFromLine(line, found); ok {
			return name
		}
	}
	return ""
}

func nameFromLine(line string, found []string) (string, bool) {
	candidate := line
	if i := strings.LastIndex(line, ":"); i >= 0 {
		candidate = densest(candidateSep.Split(line[i+1:], -1))
	}
	candidate = strings.TrimSpace(labelPrefixRe.ReplaceAllString(strings.TrimSpace(candidate), ""))

	switch {
	case candidate == "",
		strings.Contains(candidate, "@"),
		placeholderRe.MatchString(candidate),
		labelWords[strings.ToLower(candidate)]:
		return "", false
	}

	letters, digits, total := 0, 0, 0
	for _, r := range candidate {
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	if letters == 0 || digits > 4 || float64(letters) < 0.35*float64(total) {
		return "", false
	}

	for _, v := range found {
		if v != "" && containsWord(candidate, v) {
			return "", false
		}
	}
	return candidate, true
}

// densest returns the segment with the most letters.
func densest(segments []string) string {
	best, bestLetters := "", -1
	for _, s := range segments {
		n := 0
		for _, r := range s {
			if unicode.IsLetter(r) {
				n++
			}
		}
		if n > bestLetters {
			best, bestLetters = s, n
		}
	}
	return best
}

func containsWord(s, word string) bool {
	re, err := regexp.Compile(`(?i)(^|[^\pL\pN])` + regexp.QuoteMeta(word) + `($|[^\pL\pN])`)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
