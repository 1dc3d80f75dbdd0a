package advocate

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// AdvocateHandler handles REST API requests for the advocate resource.
type AdvocateHandler struct {
	svc domain.AdvocateService
}

// NewAdvocateHandler creates a new AdvocateHandler with the given service.
func NewAdvocateHandler(svc domain.AdvocateService) *AdvocateHandler {
	return &AdvocateHandler{svc: svc}
}

// List handles GET /api/advocates.
func (h *AdvocateHandler) List(c *gin.Context) {
	page, pageSize, err := pkg.ParsePage(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	filters, err := pkg.ParseFilters(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	result, err := h.svc.GetAdvocatesPaginated(c.Request.Context(), page, pageSize, filters, pkg.ParseSort(c))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// Search handles GET /api/advocates/search.
func (h *AdvocateHandler) Search(c *gin.Context) {
	page, pageSize, err := pkg.ParsePage(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	result, err := h.svc.SearchAdvocates(c.Request.Context(), c.Query("q"), page, pageSize)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.List(c, result)
}

// FilterOptions handles GET /api/advocates/filter-options.
func (h *AdvocateHandler) FilterOptions(c *gin.Context) {
	opts, err := h.svc.GetAdvocateFilterOptions(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, opts)
}

// Get handles GET /api/advocates/:id.
func (h *AdvocateHandler) Get(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	advocate, err := h.svc.GetAdvocateByID(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, advocate)
}

// Create handles POST /api/admin/advocates.
func (h *AdvocateHandler) Create(c *gin.Context) {
	var req AdvocateRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	advocate, err := h.svc.CreateAdvocate(c.Request.Context(), req.toInput())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Created(c, advocate)
}

// Update handles PUT /api/admin/advocates/:id.
func (h *AdvocateHandler) Update(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	var req AdvocateRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	advocate, err := h.svc.UpdateAdvocate(c.Request.Context(), id, req.toInput())
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, advocate)
}

// Delete handles DELETE /api/admin/advocates/:id.
func (h *AdvocateHandler) Delete(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, err.Error(), nil))
		return
	}

	if err := h.svc.DeleteAdvocate(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// InvalidateCache handles POST /api/admin/cache/invalidate.
func (h *AdvocateHandler) InvalidateCache(c *gin.Context) {
	if err := h.svc.InvalidateAdvocateCaches(c.Request.Context()); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, InvalidateResponse{Invalidated: true})
}

// parseID extracts and validates the :id path parameter.
func parseID(c *gin.Context) (uint, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id: %s", raw)
	}
	return uint(id), nil
}
