package advocate

import "github.com/gin-gonic/gin"

// AdvocateModule implements the app.Module interface for the advocate domain.
type AdvocateModule struct {
	handler   *AdvocateHandler
	adminAuth gin.HandlerFunc
}

// NewModule creates a new AdvocateModule. adminAuth guards every write
// route. Panics if h or adminAuth is nil.
func NewModule(h *AdvocateHandler, adminAuth gin.HandlerFunc) *AdvocateModule {
	if h == nil {
		panic("advocate.NewModule: handler must not be nil")
	}
	if adminAuth == nil {
		panic("advocate.NewModule: adminAuth must not be nil")
	}
	return &AdvocateModule{handler: h, adminAuth: adminAuth}
}

// RegisterRoutes registers the public read API and the admin write API.
func (m *AdvocateModule) RegisterRoutes(api *gin.RouterGroup) {
	// Static segments are registered alongside :id; gin prefers them.
	api.GET("/advocates", m.handler.List)
	api.GET("/advocates/search", m.handler.Search)
	api.GET("/advocates/filter-options", m.handler.FilterOptions)
	api.GET("/advocates/:id", m.handler.Get)

	admin := api.Group("/admin", m.adminAuth)
	admin.POST("/advocates", m.handler.Create)
	admin.PUT("/advocates/:id", m.handler.Update)
	admin.DELETE("/advocates/:id", m.handler.Delete)
	admin.POST("/cache/invalidate", m.handler.InvalidateCache)
}
