package domain

import (
	"slices"
	"strconv"
	"strings"
)

// SortColumn names a sortable advocate attribute.
type SortColumn string

// Sortable columns.
const (
	SortFirstName         SortColumn = "firstName"
	SortLastName          SortColumn = "lastName"
	SortCity              SortColumn = "city"
	SortDegree            SortColumn = "degree"
	SortYearsOfExperience SortColumn = "yearsOfExperience"
	SortCreatedAt         SortColumn = "createdAt"
)

// SortDirection is asc or desc.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is a single-column ordering.
type Sort struct {
	Column    SortColumn    `json:"column"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort orders newest advocates first.
func DefaultSort() Sort {
	return Sort{Column: SortCreatedAt, Direction: SortDesc}
}

// ValidSortColumn reports whether c is one of the sortable columns.
func ValidSortColumn(c SortColumn) bool {
	switch c {
	case SortFirstName, SortLastName, SortCity, SortDegree, SortYearsOfExperience, SortCreatedAt:
		return true
	}
	return false
}

// Normalize fills in defaults for unknown or empty values.
func (s Sort) Normalize() Sort {
	if !ValidSortColumn(s.Column) {
		return DefaultSort()
	}
	if s.Direction != SortAsc && s.Direction != SortDesc {
		s.Direction = SortAsc
	}
	return s
}

// Filters is the single filter model shared by the SQL builder and the
// in-memory predicate. Nil experience bounds mean unbounded.
type Filters struct {
	Search        string   `json:"search,omitempty"`
	CityIDs       []uint   `json:"cityIds,omitempty"`
	DegreeIDs     []uint   `json:"degreeIds,omitempty"`
	SpecialtyIDs  []uint   `json:"specialtyIds,omitempty"`
	AreaCodes     []string `json:"areaCodes,omitempty"`
	MinExperience *int     `json:"minExperience,omitempty"`
	MaxExperience *int     `json:"maxExperience,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return strings.TrimSpace(f.Search) == "" &&
		len(f.CityIDs) == 0 &&
		len(f.DegreeIDs) == 0 &&
		len(f.SpecialtyIDs) == 0 &&
		len(f.AreaCodes) == 0 &&
		f.MinExperience == nil &&
		f.MaxExperience == nil
}

// Normalized returns a copy with a trimmed search term and sorted,
// de-duplicated id and area-code lists. Semantically equal filters
// normalize to equal values.
func (f Filters) Normalized() Filters {
	out := Filters{
		Search:        strings.TrimSpace(f.Search),
		CityIDs:       uniqueSortedIDs(f.CityIDs),
		DegreeIDs:     uniqueSortedIDs(f.DegreeIDs),
		SpecialtyIDs:  uniqueSortedIDs(f.SpecialtyIDs),
		MinExperience: copyInt(f.MinExperience),
		MaxExperience: copyInt(f.MaxExperience),
	}
	if len(f.AreaCodes) > 0 {
		codes := make([]string, 0, len(f.AreaCodes))
		for _, c := range f.AreaCodes {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
		slices.Sort(codes)
		out.AreaCodes = slices.Compact(codes)
		if len(out.AreaCodes) == 0 {
			out.AreaCodes = nil
		}
	}
	return out
}

// CacheKey renders the normalized filters as a stable string.
func (f Filters) CacheKey() string {
	n := f.Normalized()
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strconv.Quote(strings.ToLower(n.Search)))
	b.WriteString(";c=")
	writeIDs(&b, n.CityIDs)
	b.WriteString(";d=")
	writeIDs(&b, n.DegreeIDs)
	b.WriteString(";s=")
	writeIDs(&b, n.SpecialtyIDs)
	b.WriteString(";a=")
	b.WriteString(strings.Join(n.AreaCodes, ","))
	b.WriteString(";min=")
	writeOptInt(&b, n.MinExperience)
	b.WriteString(";max=")
	writeOptInt(&b, n.MaxExperience)
	return b.String()
}

func writeIDs(b *strings.Builder, ids []uint) {
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
}

func writeOptInt(b *strings.Builder, v *int) {
	if v == nil {
		b.WriteByte('-')
		return
	}
	b.WriteString(strconv.Itoa(*v))
}

func uniqueSortedIDs(ids []uint) []uint {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
