package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/you/accountsvc/domain"
)

// JWTServiceImpl implements domain.TokenService
type JWTServiceImpl struct {
	secretKey       []byte
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

type claims struct {
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, issuer string, accessTTL, refreshTTL time.Duration) domain.TokenService {
	return &JWTServiceImpl{
		secretKey:       []byte(secretKey),
		issuer:          issuer,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}
}

func (j *JWTServiceImpl) AccessTTL() time.Duration  { return j.accessTokenTTL }
func (j *JWTServiceImpl) RefreshTTL() time.Duration { return j.refreshTokenTTL }

// GenerateAccessToken implements domain.TokenService
func (j *JWTServiceImpl) GenerateAccessToken(userID, sessionID string) (string, error) {
	return j.sign(userID, sessionID, domain.AccessTokenType, uuid.NewString(), j.accessTokenTTL)
}

// GenerateRefreshToken signs a refresh token whose jti is the session id,
// so the token maps onto exactly one stored refresh record.
func (j *JWTServiceImpl) GenerateRefreshToken(userID, sessionID string) (string, error) {
	return j.sign(userID, sessionID, domain.RefreshTokenType, sessionID, j.refreshTokenTTL)
}

func (j *JWTServiceImpl) sign(userID, sessionID, tokenType, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		SessionID: sessionID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(j.secretKey)
}

// ValidateAccessToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateAccessToken(tokenString string) (*domain.TokenClaims, error) {
	return j.validateToken(tokenString, domain.AccessTokenType)
}

// ValidateRefreshToken implements domain.TokenService
func (j *JWTServiceImpl) ValidateRefreshToken(tokenString string) (*domain.TokenClaims, error) {
	return j.validateToken(tokenString, domain.RefreshTokenType)
}

// validateToken validates a JWT token and returns claims
func (j *JWTServiceImpl) validateToken(tokenString, wantType string) (*domain.TokenClaims, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(token *jwt.Token) (interface{}, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, domain.ErrTokenMalformed
		default:
			return nil, domain.ErrTokenInvalid
		}
	}

	if !token.Valid || c.TokenType != wantType || c.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	tokenClaims := &domain.TokenClaims{
		UserID:    c.Subject,
		SessionID: c.SessionID,
		TokenType: c.TokenType,
		TokenID:   c.ID,
	}
	if c.IssuedAt != nil {
		tokenClaims.IssuedAt = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		tokenClaims.ExpiresAt = c.ExpiresAt.Unix()
	}

	return tokenClaims, nil
}
