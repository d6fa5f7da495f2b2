package cache

import "fmt"

// VerificationCodeKey holds the active code for an email
func VerificationCodeKey(email string) string {
	return "email_verification:" + email
}

// ResendCounterKey holds the verification email attempt count for an email
func ResendCounterKey(email string) string {
	return "rate_limit:verification:" + email
}

// RefreshTokenKey holds one refresh token record
func RefreshTokenKey(userID, tokenID string) string {
	return fmt.Sprintf("refresh_token:%s:%s", userID, tokenID)
}

// RefreshTokenPattern matches every refresh token record of a user
func RefreshTokenPattern(userID string) string {
	return fmt.Sprintf("refresh_token:%s:*", userID)
}
