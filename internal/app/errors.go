package app

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

var errRouteNotFound = domain.NewAppError(domain.CodeNotFound, "route not found", nil)

// noRouteHandler answers unknown paths with the standard failure envelope.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pkg.Abort(c, errRouteNotFound)
	}
}
