package advocate

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// PostgreSQL SQLSTATE codes for constraint violations.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// advocateRepository implements domain.AdvocateRepository using GORM.
type advocateRepository struct {
	db *gorm.DB
}

// NewAdvocateRepository creates a new AdvocateRepository backed by the given GORM database.
func NewAdvocateRepository(db *gorm.DB) domain.AdvocateRepository {
	return &advocateRepository{db: db}
}

func (r *advocateRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Advocate{})
}

// List returns one page of active advocates matching filters.
func (r *advocateRepository) List(ctx context.Context, page, pageSize int, filters domain.Filters, sort domain.Sort) ([]domain.AdvocateWithRelations, error) {
	q := applyFilters(r.model(ctx).Joins("City").Joins("Degree"), filters)
	q = applySort(q, sort).Scopes(pkg.Paginate(page, pageSize))

	var advocates []domain.Advocate
	if err := q.Find(&advocates).Error; err != nil {
		return nil, mapError(err, "failed to list advocates")
	}
	return r.withSpecialties(ctx, advocates)
}

// Count returns the number of active advocates matching filters. It does not
// join relations; every filter is expressible against advocates alone.
func (r *advocateRepository) Count(ctx context.Context, filters domain.Filters) (int64, error) {
	var total int64
	if err := applyFilters(r.model(ctx), filters).Count(&total).Error; err != nil {
		return 0, mapError(err, "failed to count advocates")
	}
	return total, nil
}

// Search runs a ranked full-text query over name, city, degree and
// specialties. All tokens must match.
func (r *advocateRepository) Search(ctx context.Context, tokens []string, page, pageSize int) ([]domain.AdvocateWithRelations, int64, error) {
	if len(tokens) == 0 {
		return []domain.AdvocateWithRelations{}, 0, nil
	}
	where, rank := searchClauses(r.db, tokens)

	var total int64
	if err := r.model(ctx).Where("advocates.is_active = ?", true).Where(where).Count(&total).Error; err != nil {
		return nil, 0, mapError(err, "failed to search advocates")
	}
	if total == 0 || int64((page-1)*pageSize) >= total {
		return []domain.AdvocateWithRelations{}, total, nil
	}

	var advocates []domain.Advocate
	err := r.model(ctx).Joins("City").Joins("Degree").
		Where("advocates.is_active = ?", true).
		Where(where).
		Order(clause.OrderBy{Expression: rank}).
		Scopes(pkg.Paginate(page, pageSize)).
		Find(&advocates).Error
	if err != nil {
		return nil, 0, mapError(err, "failed to search advocates")
	}

	out, err := r.withSpecialties(ctx, advocates)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID retrieves an advocate by primary key regardless of IsActive.
// Soft-deleted advocates are not found.
func (r *advocateRepository) GetByID(ctx context.Context, id uint) (*domain.AdvocateWithRelations, error) {
	var a domain.Advocate
	err := r.model(ctx).Joins("City").Joins("Degree").
		Where("advocates.id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, mapError(err, "failed to get advocate")
	}
	out, err := r.withSpecialties(ctx, []domain.Advocate{a})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

type optionRow struct {
	ID    uint
	Name  string
	State string
	Count int64
}

// FilterOptions lists each city, degree and specialty used by at least one
// active advocate, with the number of such advocates.
func (r *advocateRepository) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	db := r.db.WithContext(ctx)

	var cities []optionRow
	err := db.Table("cities").
		Select("cities.id, cities.name, cities.state, COUNT(advocates.id) AS count").
		Joins("JOIN advocates ON advocates.city_id = cities.id AND advocates.is_active = ? AND advocates.deleted_at IS NULL", true).
		Group("cities.id, cities.name, cities.state").
		Order("cities.name, cities.state").
		Scan(&cities).Error
	if err != nil {
		return nil, mapError(err, "failed to load filter options")
	}

	var degrees []optionRow
	err = db.Table("degrees").
		Select("degrees.id, degrees.name, COUNT(advocates.id) AS count").
		Joins("JOIN advocates ON advocates.degree_id = degrees.id AND advocates.is_active = ? AND advocates.deleted_at IS NULL", true).
		Group("degrees.id, degrees.name").
		Order("degrees.name").
		Scan(&degrees).Error
	if err != nil {
		return nil, mapError(err, "failed to load filter options")
	}

	var specialties []optionRow
	err = db.Table("specialties").
		Select("specialties.id, specialties.name, COUNT(DISTINCT advocates.id) AS count").
		Joins("JOIN advocate_specialties x ON x.specialty_id = specialties.id").
		Joins("JOIN advocates ON advocates.id = x.advocate_id AND advocates.is_active = ? AND advocates.deleted_at IS NULL", true).
		Group("specialties.id, specialties.name").
		Order("specialties.name").
		Scan(&specialties).Error
	if err != nil {
		return nil, mapError(err, "failed to load filter options")
	}

	opts := &domain.FilterOptions{
		Cities:      toOptions(cities),
		Degrees:     toOptions(degrees),
		Specialties: toOptions(specialties),
	}
	return opts, nil
}

func toOptions(rows []optionRow) []domain.FilterOption {
	out := make([]domain.FilterOption, 0, len(rows))
	for _, row := range rows {
		if row.Count == 0 {
			continue
		}
		name := row.Name
		if row.State != "" {
			name += ", " + row.State
		}
		out = append(out, domain.FilterOption{ID: row.ID, Name: name, Count: row.Count})
	}
	return out
}

// Create inserts an advocate and its specialty links in one transaction.
func (r *advocateRepository) Create(ctx context.Context, advocate *domain.Advocate, specialtyIDs []uint) error {
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(advocate).Error; err != nil {
			return err
		}
		return linkSpecialties(tx, advocate.ID, specialtyIDs)
	})
	return mapError(err, "failed to create advocate")
}

// Update overwrites the writable columns of an advocate and replaces its
// specialty links in one transaction.
func (r *advocateRepository) Update(ctx context.Context, advocate *domain.Advocate, specialtyIDs []uint) error {
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		result := tx.Model(&domain.Advocate{}).
			Where("id = ?", advocate.ID).
			Updates(map[string]any{
				"first_name":          advocate.FirstName,
				"last_name":           advocate.LastName,
				"city_id":             advocate.CityID,
				"degree_id":           advocate.DegreeID,
				"years_of_experience": advocate.YearsOfExperience,
				"phone_number":        advocate.PhoneNumber,
				"is_active":           advocate.IsActive,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.NewAppError(domain.CodeNotFound, "advocate not found", nil)
		}
		if err := tx.Where("advocate_id = ?", advocate.ID).Delete(&domain.AdvocateSpecialty{}).Error; err != nil {
			return err
		}
		return linkSpecialties(tx, advocate.ID, specialtyIDs)
	})
	return mapError(err, "failed to update advocate")
}

// Delete soft-deletes an advocate by ID.
func (r *advocateRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Advocate{}, id)
	if result.Error != nil {
		return mapError(result.Error, "failed to delete advocate")
	}
	if result.RowsAffected == 0 {
		return domain.NewAppError(domain.CodeNotFound, "advocate not found", nil)
	}
	return nil
}

func linkSpecialties(tx *gorm.DB, advocateID uint, specialtyIDs []uint) error {
	ids := slices.Clone(specialtyIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}
	links := make([]domain.AdvocateSpecialty, len(ids))
	for i, id := range ids {
		links[i] = domain.AdvocateSpecialty{AdvocateID: advocateID, SpecialtyID: id}
	}
	return tx.Omit(clause.Associations).Create(&links).Error
}

// specialtyRow is a specialty tagged with the advocate it belongs to.
type specialtyRow struct {
	AdvocateID uint
	domain.Specialty
}

// withSpecialties attaches specialties to advocates with a single query.
func (r *advocateRepository) withSpecialties(ctx context.Context, advocates []domain.Advocate) ([]domain.AdvocateWithRelations, error) {
	out := make([]domain.AdvocateWithRelations, len(advocates))
	if len(advocates) == 0 {
		return out, nil
	}
	ids := make([]uint, len(advocates))
	for i, a := range advocates {
		ids[i] = a.ID
	}

	var rows []specialtyRow
	err := r.db.WithContext(ctx).Table("specialties").
		Select("x.advocate_id, specialties.*").
		Joins("JOIN advocate_specialties x ON x.specialty_id = specialties.id").
		Where("x.advocate_id IN ?", ids).
		Order("specialties.name").
		Scan(&rows).Error
	if err != nil {
		return nil, mapError(err, "failed to load advocate specialties")
	}

	byAdvocate := make(map[uint][]domain.Specialty, len(advocates))
	for _, row := range rows {
		byAdvocate[row.AdvocateID] = append(byAdvocate[row.AdvocateID], row.Specialty)
	}
	for i, a := range advocates {
		specialties := byAdvocate[a.ID]
		if specialties == nil {
			specialties = []domain.Specialty{}
		}
		out[i] = domain.AdvocateWithRelations{Advocate: a, Specialties: specialties}
	}
	return out, nil
}

// mapError converts GORM and driver errors to domain errors. msg describes
// the failed operation and is used only for database errors.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NewAppError(domain.CodeNotFound, "advocate not found", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.NewAppError(domain.CodeAlreadyExists, "an advocate with this phone number already exists", err)
		case pgCheckViolation:
			return domain.NewAppError(domain.CodeValidation, "advocate violates a check constraint", err)
		case pgForeignKeyViolation:
			return domain.NewAppError(domain.CodeValidation, "referenced city, degree or specialty does not exist", err)
		}
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "an advocate with this phone number already exists", err)
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) || isCheckError(err) {
		return domain.NewAppError(domain.CodeValidation, "advocate violates a check constraint", err)
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) || isForeignKeyError(err) {
		return domain.NewAppError(domain.CodeValidation, "referenced city, degree or specialty does not exist", err)
	}
	return domain.NewDatabaseError(msg, err)
}

// The pure-Go SQLite driver does not translate constraint errors, so they are
// recognized by message.

func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

func isCheckError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "check constraint failed")
}

func isForeignKeyError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}
