// errors.go -- Coordinator failure kinds.
//
// Every sentinel is terminal for the request that produced it. Handlers map
// them to status codes with errors.Is; anything else is an infrastructure
// failure and becomes a 500.
package auth

import (
	"errors"

	"github.com/hieuhoangm38/Ecommerce/internal/token"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a password mismatch.
	ErrInvalidCredentials = errors.New("username or password is incorrect")

	// ErrUserNotFound is returned when an email or token id does not resolve to a user.
	ErrUserNotFound = errors.New("user not found")

	// ErrOtpInvalidOrExpired is returned for a missing, expired, mismatched or already used code.
	ErrOtpInvalidOrExpired = errors.New("otp invalid or expired")

	// ErrMalformedToken is returned when a refresh token cannot be parsed into a user id.
	ErrMalformedToken = token.ErrMalformedToken

	// ErrRefreshTokenRejected is returned when no refresh record exists or the caller's IP
	// differs from the one recorded at issuance.
	ErrRefreshTokenRejected = errors.New("refresh token rejected")

	// ErrAccessTokenRejected is returned by Authorize for an invalid, expired or logged-out access token.
	ErrAccessTokenRejected = errors.New("access token rejected")
)
