package front

import (
	"github.com/gin-gonic/gin"
	"github.com/opticore-app/opticore/internal/config"
	internalhttp "github.com/opticore-app/opticore/internal/http"
	"github.com/opticore-app/opticore/internal/http/api/front/handlers"
	"github.com/opticore-app/opticore/internal/revocation"
	"github.com/opticore-app/opticore/internal/store"
)

// RegisterFrontRoutes registers the authentication and profile routes.
// The auth middleware is expected to be installed on the engine already;
// this package adds the explicit gates on authenticated routes.
func RegisterFrontRoutes(r *gin.Engine, st *store.GormStore, cfg config.AppConfig, revocations *revocation.Store) {
	if r == nil || st == nil {
		return
	}

	auth := r.Group("/v0/auth")

	authHandler := handlers.NewAuthHandler(st, cfg.JWT, cfg.Master, revocations)
	auth.POST("/login", authHandler.Login)

	authed := auth.Group("")
	authed.Use(internalhttp.RequireAuth())
	authed.POST("/switch-database", authHandler.SwitchDatabase)
	authed.POST("/logout", authHandler.Logout)
	authed.POST("/logout-all", authHandler.LogoutAll)

	profileHandler := handlers.NewProfileHandler(st)
	me := r.Group("/v0/me")
	me.Use(internalhttp.RequireAuth())
	me.GET("", profileHandler.Me)
}
