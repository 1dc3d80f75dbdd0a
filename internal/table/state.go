package table

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/simp-lee/advocatedir/internal/domain"
)

// Defaults for a fresh table.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// State is everything the user controls: the page window, the filters and
// the sort. Its URL form is the shareable source of truth.
type State struct {
	Page         int
	PageSize     int
	Search       string
	CityIDs      []uint
	DegreeIDs    []uint
	SpecialtyIDs []uint
	AreaCodes    []string
	MinExp       *int
	MaxExp       *int
	Sort         domain.Sort
}

// URL query parameter names.
const (
	paramPage        = "page"
	paramPageSize    = "pageSize"
	paramSearch      = "search"
	paramDegrees     = "degrees"
	paramCities      = "cities"
	paramSpecialties = "specialties"
	paramAreaCodes   = "areaCodes"
	paramMinExp      = "minExp"
	paramMaxExp      = "maxExp"
	paramSort        = "sort"
	paramSortDir     = "sortDir"
)

// ParseQuery decodes a State from URL query values. Malformed values are
// ignored and fall back to their defaults.
func ParseQuery(v url.Values) State {
	s := State{
		Page:         positiveInt(v.Get(paramPage), DefaultPage),
		PageSize:     positiveInt(v.Get(paramPageSize), DefaultPageSize),
		Search:       strings.TrimSpace(v.Get(paramSearch)),
		CityIDs:      idList(v[paramCities]),
		DegreeIDs:    idList(v[paramDegrees]),
		SpecialtyIDs: idList(v[paramSpecialties]),
		AreaCodes:    areaCodeList(v[paramAreaCodes]),
		MinExp:       optionalInt(v.Get(paramMinExp)),
		MaxExp:       optionalInt(v.Get(paramMaxExp)),
		Sort:         domain.DefaultSort(),
	}
	if col := domain.SortColumn(strings.TrimSpace(v.Get(paramSort))); col != "" {
		s.Sort = domain.Sort{
			Column:    col,
			Direction: domain.SortDirection(strings.ToLower(strings.TrimSpace(v.Get(paramSortDir)))),
		}.Normalize()
	}
	return s
}

// Query encodes s as URL query values. Values equal to their defaults are
// left out so the canonical URL for a fresh table is empty.
func (s State) Query() url.Values {
	s = s.normalized()
	v := url.Values{}
	if s.Page != DefaultPage {
		v.Set(paramPage, strconv.Itoa(s.Page))
	}
	if s.PageSize != DefaultPageSize {
		v.Set(paramPageSize, strconv.Itoa(s.PageSize))
	}
	if s.Search != "" {
		v.Set(paramSearch, s.Search)
	}
	setIDList(v, paramCities, s.CityIDs)
	setIDList(v, paramDegrees, s.DegreeIDs)
	setIDList(v, paramSpecialties, s.SpecialtyIDs)
	if len(s.AreaCodes) > 0 {
		v.Set(paramAreaCodes, strings.Join(s.AreaCodes, ","))
	}
	if s.MinExp != nil {
		v.Set(paramMinExp, strconv.Itoa(*s.MinExp))
	}
	if s.MaxExp != nil {
		v.Set(paramMaxExp, strconv.Itoa(*s.MaxExp))
	}
	if s.Sort != domain.DefaultSort() {
		v.Set(paramSort, string(s.Sort.Column))
		v.Set(paramSortDir, string(s.Sort.Direction))
	}
	return v
}

// Filters returns the filter criteria carried by s.
func (s State) Filters() domain.Filters {
	return domain.Filters{
		Search:        s.Search,
		CityIDs:       s.CityIDs,
		DegreeIDs:     s.DegreeIDs,
		SpecialtyIDs:  s.SpecialtyIDs,
		AreaCodes:     s.AreaCodes,
		MinExperience: s.MinExp,
		MaxExperience: s.MaxExp,
	}.Normalized()
}

// FiltersActive reports whether the table must ask the server to filter.
// Area codes alone are applied to the client cache and do not count.
func (s State) FiltersActive() bool {
	return strings.TrimSpace(s.Search) != "" ||
		len(s.CityIDs) > 0 ||
		len(s.DegreeIDs) > 0 ||
		len(s.SpecialtyIDs) > 0 ||
		s.MinExp != nil ||
		s.MaxExp != nil
}

func (s State) normalized() State {
	if s.Page < 1 {
		s.Page = DefaultPage
	}
	if s.PageSize < 1 {
		s.PageSize = DefaultPageSize
	}
	if s.Sort.Column == "" {
		s.Sort = domain.DefaultSort()
	} else {
		s.Sort = s.Sort.Normalize()
	}
	f := s.Filters()
	s.Search = f.Search
	s.CityIDs, s.DegreeIDs, s.SpecialtyIDs = f.CityIDs, f.DegreeIDs, f.SpecialtyIDs
	s.AreaCodes = f.AreaCodes
	return s
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func optionalInt(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func idList(values []string) []uint {
	var out []uint
	for _, part := range splitList(values) {
		if id, err := strconv.ParseUint(part, 10, 0); err == nil && id > 0 {
			out = append(out, uint(id))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func areaCodeList(values []string) []string {
	var out []string
	for _, part := range splitList(values) {
		if len(part) == 3 && strings.Trim(part, "0123456789") == "" {
			out = append(out, part)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func setIDList(v url.Values, key string, ids []uint) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	v.Set(key, strings.Join(parts, ","))
}
