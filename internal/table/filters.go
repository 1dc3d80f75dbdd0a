package table

import (
	"strconv"

	"github.com/simp-lee/advocatedir/internal/domain"
)

// Active filter types.
const (
	FilterSearch     = "search"
	FilterCity       = "city"
	FilterDegree     = "degree"
	FilterSpecialty  = "specialty"
	FilterAreaCode   = "areaCode"
	FilterExperience = "experience"
)

// ActiveFilter is one removable filter chip.
type ActiveFilter struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ActiveFilters lists the filters set in s, resolving ids to names through
// opts. Ids missing from opts are labelled with the raw id. opts may be nil.
func ActiveFilters(s State, opts *domain.FilterOptions) []ActiveFilter {
	f := s.Filters()
	var out []ActiveFilter

	if f.Search != "" {
		out = append(out, ActiveFilter{Type: FilterSearch, Label: `"` + f.Search + `"`, Value: f.Search})
	}

	var cities, degrees, specialties []domain.FilterOption
	if opts != nil {
		cities, degrees, specialties = opts.Cities, opts.Degrees, opts.Specialties
	}
	out = appendIDFilters(out, FilterCity, f.CityIDs, cities)
	out = appendIDFilters(out, FilterDegree, f.DegreeIDs, degrees)
	out = appendIDFilters(out, FilterSpecialty, f.SpecialtyIDs, specialties)

	for _, code := range f.AreaCodes {
		out = append(out, ActiveFilter{Type: FilterAreaCode, Label: "(" + code + ")", Value: code})
	}

	if label, value, ok := experienceFilter(f.MinExperience, f.MaxExperience); ok {
		out = append(out, ActiveFilter{Type: FilterExperience, Label: label, Value: value})
	}
	return out
}

func appendIDFilters(out []ActiveFilter, typ string, ids []uint, opts []domain.FilterOption) []ActiveFilter {
	for _, id := range ids {
		value := strconv.FormatUint(uint64(id), 10)
		label := "#" + value
		for _, o := range opts {
			if o.ID == id {
				label = o.Name
				break
			}
		}
		out = append(out, ActiveFilter{Type: typ, Label: label, Value: value})
	}
	return out
}

func experienceFilter(minExp, maxExp *int) (label, value string, ok bool) {
	switch {
	case minExp != nil && maxExp != nil:
		lo, hi := strconv.Itoa(*minExp), strconv.Itoa(*maxExp)
		return lo + "-" + hi + " years", lo + "-" + hi, true
	case minExp != nil:
		lo := strconv.Itoa(*minExp)
		return lo + "+ years", lo + "-", true
	case maxExp != nil:
		hi := strconv.Itoa(*maxExp)
		return "up to " + hi + " years", "-" + hi, true
	default:
		return "", "", false
	}
}
