package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/you/accountsvc/domain"
)

// AuthMW wraps the token service and refresh token repository for middleware
type AuthMW struct {
	tokenSvc    domain.TokenService
	refreshRepo domain.RefreshTokenRepository
}

// NewAuthMW creates new auth middleware wrapper
func NewAuthMW(tokenSvc domain.TokenService, refreshRepo domain.RefreshTokenRepository) *AuthMW {
	return &AuthMW{
		tokenSvc:    tokenSvc,
		refreshRepo: refreshRepo,
	}
}

// WithJWT returns the JWT middleware function
func (mw *AuthMW) WithJWT() gin.HandlerFunc {
	return AuthMiddleware(mw.tokenSvc, mw.refreshRepo)
}
