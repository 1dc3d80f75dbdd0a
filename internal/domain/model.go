package domain

import (
	"math"
	"time"

	"github.com/simp-lee/pagination"
)

// BaseModel is the common base struct for the lookup tables.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt;
// only advocates are soft-deleted.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Pagination is the wire block describing the position of one page inside
// a result set.
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	PageSize     int   `json:"pageSize"`
	TotalRecords int64 `json:"totalRecords"`
	TotalPages   int   `json:"totalPages"`
	HasNext      bool  `json:"hasNext"`
	HasPrevious  bool  `json:"hasPrevious"`
}

// NewPagination computes the derived pagination fields.
func NewPagination(page, pageSize int, totalRecords int64) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(totalRecords) / float64(pageSize)))
	}
	return Pagination{
		CurrentPage:  page,
		PageSize:     pageSize,
		TotalRecords: totalRecords,
		TotalPages:   totalPages,
		HasNext:      page < totalPages,
		HasPrevious:  page > 1,
	}
}

// NewPage wraps one page of items in the shared pagination result type.
// A nil items slice becomes empty so the list always serializes as [].
func NewPage[T any](items []T, page, pageSize int, total int64) *pagination.Pagination[T] {
	if items == nil {
		items = []T{}
	}
	return &pagination.Pagination[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: NewPagination(page, pageSize, total).TotalPages,
	}
}

// PageInfo converts a pagination result into the wire pagination block.
func PageInfo[T any](p *pagination.Pagination[T]) Pagination {
	if p == nil {
		return NewPagination(1, 1, 0)
	}
	return NewPagination(p.Page, p.PageSize, p.Total)
}
