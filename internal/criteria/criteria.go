// Package criteria holds the in-memory half of the advocate filter model,
// plus the small text utilities both halves rely on.
//
// The SQL half lives in the advocate repository. The two must select the same
// rows for the same domain.Filters; a parity test in the repository package
// runs both against one fixture.
package criteria

import (
	"slices"
	"strings"
	"unicode"

	"github.com/simp-lee/advocatedir/internal/domain"
)

// ParseSearchTokens splits a search string into tokens. Double-quoted phrases
// stay together as a single token. Duplicates (compared case-insensitively)
// are dropped, keeping the first occurrence and its order. An unterminated
// quote runs to the end of the input.
func ParseSearchTokens(s string) []string {
	tokens := make([]string, 0)
	seen := make(map[string]struct{})

	add := func(tok string) {
		tok = strings.Join(strings.Fields(tok), " ")
		if tok == "" {
			return
		}
		key := strings.ToLower(tok)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		tokens = append(tokens, tok)
	}

	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			add(cur.String())
			cur.Reset()
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			add(cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	add(cur.String())

	return tokens
}

// NormalizePhone strips everything but digits and drops a leading NANP
// country code from 11-digit numbers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// AreaCode returns the three-digit area code of a phone number, or "" when
// the number is too short to have one.
func AreaCode(phone string) string {
	digits := NormalizePhone(phone)
	if len(digits) < 10 {
		return ""
	}
	return digits[:3]
}

// Match reports whether the advocate satisfies every constraint in f.
func Match(f domain.Filters, a domain.AdvocateWithRelations) bool {
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		if !strings.Contains(strings.ToLower(a.FirstName), term) &&
			!strings.Contains(strings.ToLower(a.LastName), term) {
			return false
		}
	}
	if len(f.CityIDs) > 0 && !slices.Contains(f.CityIDs, a.CityID) {
		return false
	}
	if len(f.DegreeIDs) > 0 && !slices.Contains(f.DegreeIDs, a.DegreeID) {
		return false
	}
	if len(f.SpecialtyIDs) > 0 && !hasAnySpecialty(a.Specialties, f.SpecialtyIDs) {
		return false
	}
	if len(f.AreaCodes) > 0 && !slices.Contains(f.AreaCodes, AreaCode(a.PhoneNumber)) {
		return false
	}
	if f.MinExperience != nil && a.YearsOfExperience < *f.MinExperience {
		return false
	}
	if f.MaxExperience != nil && a.YearsOfExperience > *f.MaxExperience {
		return false
	}
	return true
}

// Filter returns the advocates that match f, preserving order.
func Filter(f domain.Filters, in []domain.AdvocateWithRelations) []domain.AdvocateWithRelations {
	if f.IsEmpty() {
		return in
	}
	out := make([]domain.AdvocateWithRelations, 0, len(in))
	for _, a := range in {
		if Match(f, a) {
			out = append(out, a)
		}
	}
	return out
}

func hasAnySpecialty(specialties []domain.Specialty, ids []uint) bool {
	for _, s := range specialties {
		if slices.Contains(ids, s.ID) {
			return true
		}
	}
	return false
}
