package pkg

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/advocatedir/internal/domain"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	// MaxPageSize bounds a single request. It must cover the client batch size.
	MaxPageSize = 500
)

// ParsePage reads page and pageSize from the query string. Missing values take
// the defaults; malformed or out-of-range values are a validation error.
func ParsePage(c *gin.Context) (page, pageSize int, err error) {
	page, err = queryInt(c, "page", DefaultPage)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = queryInt(c, "pageSize", DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		return 0, 0, validationf("page must be >= 1")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, 0, validationf("pageSize must be between 1 and " + strconv.Itoa(MaxPageSize))
	}
	return page, pageSize, nil
}

// ParseFilters reads the advocate filter parameters. Id lists accept both
// comma-separated values and repeated parameters (cityIds=1,2&cityIds=3).
func ParseFilters(c *gin.Context) (domain.Filters, error) {
	var f domain.Filters
	var err error

	f.Search = strings.TrimSpace(c.Query("search"))
	if f.CityIDs, err = QueryUintList(c, "cityIds"); err != nil {
		return f, err
	}
	if f.DegreeIDs, err = QueryUintList(c, "degreeIds"); err != nil {
		return f, err
	}
	if f.SpecialtyIDs, err = QueryUintList(c, "specialtyIds"); err != nil {
		return f, err
	}
	f.AreaCodes = QueryStringList(c, "areaCodes")
	for _, ac := range f.AreaCodes {
		if !isAreaCode(ac) {
			return f, validationf("areaCodes must be three-digit codes, got " + strconv.Quote(ac))
		}
	}
	if f.MinExperience, err = QueryOptionalInt(c, "minExperience"); err != nil {
		return f, err
	}
	if f.MaxExperience, err = QueryOptionalInt(c, "maxExperience"); err != nil {
		return f, err
	}
	if f.MinExperience != nil && *f.MinExperience < 0 {
		return f, validationf("minExperience must be >= 0")
	}
	if f.MinExperience != nil && f.MaxExperience != nil && *f.MinExperience > *f.MaxExperience {
		return f, validationf("minExperience must not exceed maxExperience")
	}
	return f.Normalized(), nil
}

// ParseSort reads sortColumn and sortDirection. Unknown columns fall back to
// the default sort rather than failing the request.
func ParseSort(c *gin.Context) domain.Sort {
	s := domain.Sort{
		Column:    domain.SortColumn(strings.TrimSpace(c.Query("sortColumn"))),
		Direction: domain.SortDirection(strings.ToLower(strings.TrimSpace(c.Query("sortDirection")))),
	}
	if s.Column == "" {
		return domain.DefaultSort()
	}
	return s.Normalize()
}

// QueryUintList collects positive ids from a repeated and/or comma-separated parameter.
func QueryUintList(c *gin.Context, key string) ([]uint, error) {
	var out []uint
	for _, raw := range QueryStringList(c, key) {
		v, err := strconv.ParseUint(raw, 10, 0)
		if err != nil || v == 0 {
			return nil, validationf(key + " must be a list of positive integers")
		}
		out = append(out, uint(v))
	}
	return out, nil
}

// QueryStringList splits a repeated and/or comma-separated parameter, dropping blanks.
func QueryStringList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// QueryOptionalInt returns nil when the parameter is absent or blank.
func QueryOptionalInt(c *gin.Context, key string) (*int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, validationf(key + " must be an integer")
	}
	return &v, nil
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET for a 1-based page.
func Paginate(page, pageSize int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validationf(key + " must be an integer")
	}
	return v, nil
}

func isAreaCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validationf(msg string) *domain.AppError {
	return domain.NewAppError(domain.CodeValidation, msg, nil)
}
