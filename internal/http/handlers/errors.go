package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/you/accountsvc/domain"
	"github.com/you/accountsvc/internal/validation"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// reports fields by their JSON names. Only the first call has an effect.
func RegisterValidators(policy domain.PasswordPolicy) error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator engine is not go-playground/validator")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		err = validation.RegisterTags(v, policy)
	})
	return err
}

// writeBindError reports a request body that failed to decode or validate
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	fe := verrs[0]
	c.JSON(http.StatusBadRequest, gin.H{
		"error": domain.NewValidationError(fe.Field(), tagReason(fe)).Error(),
	})
}

func tagReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email", "account_email":
		return "must be a valid email address"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "numeric":
		return "must contain only digits"
	case "password":
		return domain.ErrWeakPassword.Error()
	case "nickname":
		return fmt.Sprintf("must be %d to %d characters without markup", validation.NicknameMinLength, validation.NicknameMaxLength)
	default:
		return "is invalid"
	}
}

// writeError maps service errors to HTTP status codes
func writeError(c *gin.Context, err error) {
	var limitErr *domain.ResendLimitError

	switch {
	case errors.As(err, &limitErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": limitErr.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEmailAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, domain.ErrNicknameAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Nickname already taken"})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, domain.ErrEmailNotVerified):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Email not verified"})
	case errors.Is(err, domain.ErrCodeNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code not found or expired"})
	case errors.Is(err, domain.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code"})
	case errors.Is(err, domain.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrTokenMalformed):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
