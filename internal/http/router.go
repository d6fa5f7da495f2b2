package httpx

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/you/accountsvc/internal/http/handlers"
	"github.com/you/accountsvc/internal/http/middleware"
)

const maxBodyBytes = 1 << 20

func BuildRouter(ah *handlers.AuthHandlers, hh *handlers.HealthHandlers, jwtmw *middleware.AuthMW, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), gin.Recovery())

	r.GET("/health", hh.Health)

	auth := r.Group("/auth")
	auth.Use(middleware.MaxBodySize(maxBodyBytes))
	auth.POST("/register", ah.Register)
	auth.POST("/login", ah.Login)
	auth.POST("/verify-email", ah.VerifyEmail)
	auth.POST("/resend-verification", ah.ResendVerification)
	auth.POST("/refresh", ah.Refresh)

	v := auth.Group("").Use(jwtmw.WithJWT())
	v.GET("/me", ah.Me)
	v.POST("/logout", ah.Logout)

	return r
}
