package advocate

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/simp-lee/advocatedir/internal/cache"
	"github.com/simp-lee/advocatedir/internal/config"
	"github.com/simp-lee/advocatedir/internal/criteria"
	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/pagination"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// cacheNamespace prefixes every advocate cache key; invalidation drops the
// whole namespace.
const cacheNamespace = "advocates"

const maxNameLength = 100

// advocateService implements domain.AdvocateService with a cache-aside layer
// in front of the repository.
type advocateService struct {
	repo   domain.AdvocateRepository
	cache  *cache.Cache
	ttl    config.CacheTTLs
	logger *slog.Logger
}

// NewAdvocateService creates a new AdvocateService. A nil logger falls back
// to slog.Default.
func NewAdvocateService(repo domain.AdvocateRepository, c *cache.Cache, ttl config.CacheTTLs, logger *slog.Logger) domain.AdvocateService {
	if repo == nil {
		panic("advocate: repository must not be nil")
	}
	if c == nil {
		panic("advocate: cache must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &advocateService{repo: repo, cache: c, ttl: ttl, logger: logger}
}

func pageKey(page, pageSize int, f domain.Filters, s domain.Sort) string {
	return cache.Key(cacheNamespace, "paginated",
		"p="+strconv.Itoa(page),
		"ps="+strconv.Itoa(pageSize),
		f.CacheKey(),
		"sort="+string(s.Column)+"."+string(s.Direction),
	)
}

func countKey(f domain.Filters) string {
	return cache.Key(cacheNamespace, "count", f.CacheKey())
}

func searchKey(tokens []string, page, pageSize int) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = strconv.Quote(strings.ToLower(t))
	}
	return cache.Key(cacheNamespace, "search",
		strings.Join(quoted, ","),
		"p="+strconv.Itoa(page),
		"ps="+strconv.Itoa(pageSize),
	)
}

func advocateKey(id uint) string {
	return cache.Key(cacheNamespace, "id", strconv.FormatUint(uint64(id), 10))
}

var filterOptionsKey = cache.Key(cacheNamespace, "filter-options")

// GetAdvocatesPaginated returns one page of active advocates with filters and
// sort applied. Results and totals are cached separately, so pages of the
// same filter set share one count.
func (s *advocateService) GetAdvocatesPaginated(ctx context.Context, page, pageSize int, filters domain.Filters, sort domain.Sort) (*pagination.Pagination[domain.AdvocateWithRelations], error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	filters = filters.Normalized()
	sort = sort.Normalize()

	res, err := cache.GetOrLoad(ctx, s.cache, "page", pageKey(page, pageSize, filters, sort), s.ttl.Page,
		func(ctx context.Context) (*pagination.Pagination[domain.AdvocateWithRelations], error) {
			total, err := s.count(ctx, filters)
			if err != nil {
				return nil, err
			}
			items := []domain.AdvocateWithRelations{}
			if int64((page-1)*pageSize) < total {
				if items, err = s.repo.List(ctx, page, pageSize, filters, sort); err != nil {
					return nil, err
				}
			}
			return domain.NewPage(items, page, pageSize, total), nil
		})
	if err != nil {
		return nil, s.fail(ctx, "failed to fetch advocates", err)
	}
	return res, nil
}

func (s *advocateService) count(ctx context.Context, filters domain.Filters) (int64, error) {
	return cache.GetOrLoad(ctx, s.cache, "count", countKey(filters), s.ttl.Count,
		func(ctx context.Context) (int64, error) {
			return s.repo.Count(ctx, filters)
		})
}

// SearchAdvocates runs a ranked full-text search. A blank term is the same
// as an unfiltered listing in the default order.
func (s *advocateService) SearchAdvocates(ctx context.Context, term string, page, pageSize int) (*pagination.Pagination[domain.AdvocateWithRelations], error) {
	tokens := criteria.ParseSearchTokens(term)
	if len(tokens) == 0 {
		return s.GetAdvocatesPaginated(ctx, page, pageSize, domain.Filters{}, domain.DefaultSort())
	}
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}

	res, err := cache.GetOrLoad(ctx, s.cache, "search", searchKey(tokens, page, pageSize), s.ttl.Search,
		func(ctx context.Context) (*pagination.Pagination[domain.AdvocateWithRelations], error) {
			items, total, err := s.repo.Search(ctx, tokens, page, pageSize)
			if err != nil {
				return nil, err
			}
			return domain.NewPage(items, page, pageSize, total), nil
		})
	if err != nil {
		return nil, s.fail(ctx, "failed to search advocates", err)
	}
	return res, nil
}

// GetAdvocateFilterOptions returns the facet values in use by active advocates.
func (s *advocateService) GetAdvocateFilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	opts, err := cache.GetOrLoad(ctx, s.cache, "filter_options", filterOptionsKey, s.ttl.FilterOptions, s.repo.FilterOptions)
	if err != nil {
		return nil, s.fail(ctx, "failed to fetch filter options", err)
	}
	return opts, nil
}

// GetAdvocateByID returns an active advocate. Inactive and deleted advocates
// are not found.
func (s *advocateService) GetAdvocateByID(ctx context.Context, id uint) (*domain.AdvocateWithRelations, error) {
	if id == 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "id must be a positive integer", nil)
	}
	a, err := cache.GetOrLoad(ctx, s.cache, "advocate", advocateKey(id), s.ttl.Advocate,
		func(ctx context.Context) (*domain.AdvocateWithRelations, error) {
			a, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if !a.IsActive {
				return nil, domain.NewAppError(domain.CodeNotFound, "advocate not found", nil)
			}
			return a, nil
		})
	if err != nil {
		return nil, s.fail(ctx, "failed to fetch advocate", err)
	}
	return a, nil
}

// InvalidateAdvocateCaches drops every cached advocate result.
func (s *advocateService) InvalidateAdvocateCaches(ctx context.Context) error {
	n, err := s.cache.InvalidatePrefix(ctx, cache.Prefix(cacheNamespace))
	if err != nil {
		s.logger.ErrorContext(ctx, "advocate cache invalidation failed", slog.Any("error", err))
		return domain.NewAppError(domain.CodeInternal, "failed to invalidate advocate caches", err)
	}
	s.logger.InfoContext(ctx, "advocate caches invalidated", slog.Int("keys", n))
	return nil
}

// CreateAdvocate validates input and persists a new advocate.
func (s *advocateService) CreateAdvocate(ctx context.Context, in domain.AdvocateInput) (*domain.AdvocateWithRelations, error) {
	a, err := buildAdvocate(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a, in.SpecialtyIDs); err != nil {
		return nil, s.fail(ctx, "failed to create advocate", err)
	}
	s.afterWrite(ctx, "created", a.ID)
	return s.reload(ctx, a.ID)
}

// UpdateAdvocate replaces the writable fields and specialties of an advocate.
func (s *advocateService) UpdateAdvocate(ctx context.Context, id uint, in domain.AdvocateInput) (*domain.AdvocateWithRelations, error) {
	if id == 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "id must be a positive integer", nil)
	}
	a, err := buildAdvocate(in)
	if err != nil {
		return nil, err
	}
	a.ID = id
	if err := s.repo.Update(ctx, a, in.SpecialtyIDs); err != nil {
		return nil, s.fail(ctx, "failed to update advocate", err)
	}
	s.afterWrite(ctx, "updated", id)
	return s.reload(ctx, id)
}

// DeleteAdvocate soft-deletes an advocate.
func (s *advocateService) DeleteAdvocate(ctx context.Context, id uint) error {
	if id == 0 {
		return domain.NewAppError(domain.CodeValidation, "id must be a positive integer", nil)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.fail(ctx, "failed to delete advocate", err)
	}
	s.afterWrite(ctx, "deleted", id)
	return nil
}

// reload reads a written advocate back from the repository, bypassing the
// cache and the active-only rule.
func (s *advocateService) reload(ctx context.Context, id uint) (*domain.AdvocateWithRelations, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "failed to fetch advocate", err)
	}
	return a, nil
}

// afterWrite invalidates cached reads. The write has already committed, so a
// failed invalidation is logged rather than returned; entries expire on TTL.
func (s *advocateService) afterWrite(ctx context.Context, action string, id uint) {
	s.logger.InfoContext(ctx, "advocate "+action, slog.Uint64("id", uint64(id)))
	if err := s.InvalidateAdvocateCaches(ctx); err != nil {
		s.logger.WarnContext(ctx, "stale advocate cache after write", slog.Uint64("id", uint64(id)))
	}
}

// fail guarantees an *AppError. Domain errors pass through; anything else is
// reported as a database error under msg.
func (s *advocateService) fail(ctx context.Context, msg string, err error) error {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.NewDatabaseError(msg, err)
	}
	if appErr.Code == domain.CodeDatabase {
		s.logger.ErrorContext(ctx, msg, slog.Any("error", err))
	}
	return appErr
}

func validatePage(page, pageSize int) error {
	if page < 1 {
		return domain.NewAppError(domain.CodeValidation, "page must be >= 1", nil)
	}
	if pageSize < 1 || pageSize > pkg.MaxPageSize {
		return domain.NewAppError(domain.CodeValidation, "pageSize must be between 1 and "+strconv.Itoa(pkg.MaxPageSize), nil)
	}
	return nil
}

// buildAdvocate validates and normalizes input.
func buildAdvocate(in domain.AdvocateInput) (*domain.Advocate, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if err := validateName("firstName", firstName); err != nil {
		return nil, err
	}
	if err := validateName("lastName", lastName); err != nil {
		return nil, err
	}
	if in.CityID == 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "cityId is required", nil)
	}
	if in.DegreeID == 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "degreeId is required", nil)
	}
	if in.YearsOfExperience < 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "yearsOfExperience must be >= 0", nil)
	}
	phone := criteria.NormalizePhone(in.PhoneNumber)
	if len(phone) != 10 {
		return nil, domain.NewAppError(domain.CodeValidation, "phoneNumber must have 10 digits", nil)
	}
	for _, id := range in.SpecialtyIDs {
		if id == 0 {
			return nil, domain.NewAppError(domain.CodeValidation, "specialtyIds must be positive", nil)
		}
	}
	return &domain.Advocate{
		FirstName:         firstName,
		LastName:          lastName,
		CityID:            in.CityID,
		DegreeID:          in.DegreeID,
		YearsOfExperience: in.YearsOfExperience,
		PhoneNumber:       phone,
		IsActive:          in.IsActive,
	}, nil
}

func validateName(field, v string) error {
	if v == "" {
		return domain.NewAppError(domain.CodeValidation, field+" is required", nil)
	}
	if utf8.RuneCountInString(v) > maxNameLength {
		return domain.NewAppError(domain.CodeValidation, field+" must be at most 100 characters", nil)
	}
	return nil
}
