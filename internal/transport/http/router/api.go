package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"promo-code-service/internal/core/auth"
	"promo-code-service/internal/core/config"
	"promo-code-service/internal/service"
	"promo-code-service/internal/transport/http/handler"
	mdw "promo-code-service/internal/transport/http/middleware"
)

// NewAPIEngine assembles the engine: ambient middleware first, then the
// route table from the original API (everything under /api/auth, admin
// surface behind the admin gate, throttled validation).
func NewAPIEngine(l *zap.Logger, cfg *config.Config, jwter *auth.JWTer, users *service.UserService, authH *handler.AuthHandler, promoH *handler.PromoCodeHandler) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(16<<20),
		mdw.Timeout(10*time.Second),
		ginzap.RecoveryWithZap(l, true),
		mdw.Metrics(),
		mdw.AccessLog(l),
		cors.Default(),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	authG := api.Group("/auth")

	// Public
	authG.POST("/register", authH.Register)
	authG.POST("/login", authH.Login)

	// Authenticated
	authed := authG.Group("", mdw.AuthJWT(jwter, users))
	authed.POST("/logout", authH.Logout)
	authed.POST("/promo-codes/use", promoH.Use)

	// Validation carries its own per-identity throttle on top of the
	// engine-wide limiter.
	throttled := authed.Group("", mdw.ThrottleValidation(
		cfg.Throttle.ValidatePerUserPerMin,
		cfg.Throttle.ValidatePerIPPerMin,
	))
	throttled.POST("/promo-codes/validate", promoH.Validate)

	// Admin only
	admin := authed.Group("", mdw.RequireAdmin())
	admin.GET("/user", authH.User)
	admin.GET("/users", authH.Users)
	admin.POST("/promo-codes", promoH.Create)
	admin.GET("/promo-codes", promoH.Index)
	admin.POST("/promo-codes/:code/deactivate", promoH.Deactivate)

	return r
}
