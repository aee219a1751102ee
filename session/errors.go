package session

import "errors"

var (
	AlreadyAuthenticatedErr = errors.New("already authenticated")
	LoginInProgressErr      = errors.New("login already in progress")
	LogoutInProgressErr     = errors.New("logout in progress")
	LoginInterruptedErr     = errors.New("login interrupted by logout")
	NotAuthenticatedErr     = errors.New("not authenticated")
	NotLockedErr            = errors.New("session is not locked")
)
