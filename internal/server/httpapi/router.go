package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/i18n"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators of the HTTP layer. Health is optional.
type Deps struct {
	Auth   Authenticator
	Users  UserManager
	Health func(ctx context.Context) error
	Logger logging.Logger
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(d Deps, devMode bool) *gin.Engine {
	if devMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := d.Logger.With("module", "http")
	h := &handlers{auth: d.Auth, users: d.Users, health: d.Health, log: log}

	r := gin.New()
	r.Use(
		requestID(),
		language(),
		accessLog(log),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			log.Error(c.Request.Context(), "panic recovered", "panic", recovered)
			abortWith(c, http.StatusInternalServerError, i18n.InternalError)
		}),
	)

	r.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, i18n.NotFound)
	})

	r.GET("/health", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	authGroup.POST("/login", h.login)
	authGroup.POST("/refresh", h.refresh)
	authGroup.POST("/logout", h.bearer(), h.logout)

	users := r.Group("/users")
	users.POST("", h.createUser)
	users.GET("", h.listUsers)
	users.GET("/:id", h.getUser)
	users.PUT("/:id", h.bearer(), h.updateUser)
	users.DELETE("/:id", h.bearer(), h.deleteUser)

	return r
}
