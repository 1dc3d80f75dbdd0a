package domain

import (
	"context"
	"time"

	"github.com/simp-lee/pagination"
	"gorm.io/gorm"
)

// City is a lookup entity referenced by advocates.
type City struct {
	BaseModel
	Name  string `gorm:"size:100;not null;uniqueIndex:idx_cities_name_state" json:"name"`
	State string `gorm:"size:2;not null;uniqueIndex:idx_cities_name_state" json:"state"`
}

// TableName specifies the table name.
func (City) TableName() string {
	return "cities"
}

// Degree is a professional credential such as MD or MSW.
type Degree struct {
	BaseModel
	Code        string `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}

// TableName specifies the table name.
func (Degree) TableName() string {
	return "degrees"
}

// Specialty is a practice area; advocates link to many through AdvocateSpecialty.
type Specialty struct {
	BaseModel
	Name        string `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}

// TableName specifies the table name.
func (Specialty) TableName() string {
	return "specialties"
}

// Advocate is a practitioner listed in the directory.
//
// PhoneNumber is unique across all advocates and YearsOfExperience is
// guarded by a CHECK constraint. DeletedAt is the soft-delete marker.
type Advocate struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	FirstName         string         `gorm:"size:100;not null;index" json:"firstName"`
	LastName          string         `gorm:"size:100;not null;index" json:"lastName"`
	CityID            uint           `gorm:"not null;index" json:"cityId"`
	City              *City          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"city,omitempty"`
	DegreeID          uint           `gorm:"not null;index" json:"degreeId"`
	Degree            *Degree        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"degree,omitempty"`
	YearsOfExperience int            `gorm:"not null;check:chk_advocates_years_of_experience,years_of_experience >= 0" json:"yearsOfExperience"`
	PhoneNumber       string         `gorm:"size:20;not null;uniqueIndex" json:"phoneNumber"`
	IsActive          bool           `gorm:"not null;index" json:"isActive"`
	CreatedAt         time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deletedAt"`
}

// TableName specifies the table name.
func (Advocate) TableName() string {
	return "advocates"
}

// AdvocateSpecialty is the junction between advocates and specialties.
// Deleting an advocate cascades; deleting a specialty still in use is refused.
type AdvocateSpecialty struct {
	AdvocateID  uint       `gorm:"primaryKey;autoIncrement:false" json:"advocateId"`
	SpecialtyID uint       `gorm:"primaryKey;autoIncrement:false;index" json:"specialtyId"`
	CreatedAt   time.Time  `json:"createdAt"`
	Advocate    *Advocate  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Specialty   *Specialty `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// TableName specifies the table name.
func (AdvocateSpecialty) TableName() string {
	return "advocate_specialties"
}

// AdvocateWithRelations is the read model returned by every listing: an
// advocate with its city and degree resolved and its specialties attached.
// It is assembled by the repository and never persisted.
type AdvocateWithRelations struct {
	Advocate
	Specialties []Specialty `json:"specialties"`
}

// AllModels lists every persisted model in dependency order, for AutoMigrate.
func AllModels() []any {
	return []any{&City{}, &Degree{}, &Specialty{}, &Advocate{}, &AdvocateSpecialty{}}
}

// FilterOption is one selectable value of a filter facet with the number of
// active advocates it would match.
type FilterOption struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FilterOptions lists the values available for each facet.
type FilterOptions struct {
	Cities      []FilterOption `json:"cities"`
	Degrees     []FilterOption `json:"degrees"`
	Specialties []FilterOption `json:"specialties"`
}

// AdvocateInput carries the writable fields of an advocate.
type AdvocateInput struct {
	FirstName         string
	LastName          string
	CityID            uint
	DegreeID          uint
	YearsOfExperience int
	PhoneNumber       string
	IsActive          bool
	SpecialtyIDs      []uint
}

// AdvocateRepository defines the data access interface for advocates.
type AdvocateRepository interface {
	List(ctx context.Context, page, pageSize int, filters Filters, sort Sort) ([]AdvocateWithRelations, error)
	Count(ctx context.Context, filters Filters) (int64, error)
	Search(ctx context.Context, tokens []string, page, pageSize int) ([]AdvocateWithRelations, int64, error)
	GetByID(ctx context.Context, id uint) (*AdvocateWithRelations, error)
	FilterOptions(ctx context.Context) (*FilterOptions, error)
	Create(ctx context.Context, advocate *Advocate, specialtyIDs []uint) error
	Update(ctx context.Context, advocate *Advocate, specialtyIDs []uint) error
	Delete(ctx context.Context, id uint) error
}

// AdvocateService defines the business logic interface for advocates.
//
// Every error returned is an *AppError; raw driver errors never escape.
type AdvocateService interface {
	GetAdvocatesPaginated(ctx context.Context, page, pageSize int, filters Filters, sort Sort) (*pagination.Pagination[AdvocateWithRelations], error)
	SearchAdvocates(ctx context.Context, term string, page, pageSize int) (*pagination.Pagination[AdvocateWithRelations], error)
	GetAdvocateFilterOptions(ctx context.Context) (*FilterOptions, error)
	GetAdvocateByID(ctx context.Context, id uint) (*AdvocateWithRelations, error)
	InvalidateAdvocateCaches(ctx context.Context) error
	CreateAdvocate(ctx context.Context, in AdvocateInput) (*AdvocateWithRelations, error)
	UpdateAdvocate(ctx context.Context, id uint, in AdvocateInput) (*AdvocateWithRelations, error)
	DeleteAdvocate(ctx context.Context, id uint) error
}
