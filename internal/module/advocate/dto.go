package advocate

import "github.com/simp-lee/advocatedir/internal/domain"

// AdvocateRequest is the body of the admin create and update endpoints.
// Update replaces every field, so both share one shape.
type AdvocateRequest struct {
	FirstName         string `json:"firstName" binding:"required,max=100"`
	LastName          string `json:"lastName" binding:"required,max=100"`
	CityID            uint   `json:"cityId" binding:"required,gt=0"`
	DegreeID          uint   `json:"degreeId" binding:"required,gt=0"`
	YearsOfExperience *int   `json:"yearsOfExperience" binding:"required,gte=0,lte=80"`
	PhoneNumber       string `json:"phoneNumber" binding:"required,min=10,max=20"`
	IsActive          *bool  `json:"isActive"`
	SpecialtyIDs      []uint `json:"specialtyIds" binding:"omitempty,dive,gt=0"`
}

// toInput converts the request. Omitted isActive means active.
func (r AdvocateRequest) toInput() domain.AdvocateInput {
	in := domain.AdvocateInput{
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		CityID:       r.CityID,
		DegreeID:     r.DegreeID,
		PhoneNumber:  r.PhoneNumber,
		IsActive:     true,
		SpecialtyIDs: r.SpecialtyIDs,
	}
	if r.YearsOfExperience != nil {
		in.YearsOfExperience = *r.YearsOfExperience
	}
	if r.IsActive != nil {
		in.IsActive = *r.IsActive
	}
	return in
}

// InvalidateResponse reports a cache invalidation.
type InvalidateResponse struct {
	Invalidated bool `json:"invalidated"`
}
