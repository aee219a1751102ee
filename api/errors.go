package api

import "errors"

var (
	InvalidCredentialsErr = errors.New("invalid credentials")
	SessionExpiredErr     = errors.New("session expired")
	PasswordMismatchErr   = errors.New("password does not match")
	ServiceUnavailableErr = errors.New("service unavailable")
	UnexpectedStatusErr   = errors.New("unexpected response status")
)
