// Package apifakes provides an in-memory AuthAPI for tests.
package apifakes

import (
	"context"
	"sync"

	"github.com/Eklista/medialab-sub000/api"
	"github.com/Eklista/medialab-sub000/session"
	"github.com/Eklista/medialab-sub000/users"
)

// FakeAuthAPI is a controllable in-memory stand-in for the REST auth
// client. Zero value is not usable; create with NewFakeAuthAPI.
type FakeAuthAPI struct {
	mu sync.Mutex

	user     users.User
	password string
	loggedIn bool

	// Forced failures; nil means normal behavior.
	LoginErr  error
	LogoutErr error
	StatusErr error

	// Hooks run during calls, outside the fake's lock, to orchestrate
	// interleavings in race tests.
	BeforeLoginReturn  func()
	BeforeStatusReturn func()

	LoginCalls       int
	LogoutCalls      int
	StatusCalls      int
	VerifyCalls      int
	ClearCookieCalls int
}

// NewFakeAuthAPI creates a fake that accepts the given user and password.
func NewFakeAuthAPI(user users.User, password string) *FakeAuthAPI {
	return &FakeAuthAPI{user: user, password: password}
}

func (f *FakeAuthAPI) Login(ctx context.Context, creds api.Credentials) (users.User, error) {
	f.mu.Lock()
	f.LoginCalls++
	forced := f.LoginErr
	user := f.user
	ok := creds.Email == f.user.Email && creds.Password == f.password
	f.mu.Unlock()

	if f.BeforeLoginReturn != nil {
		f.BeforeLoginReturn()
	}
	if forced != nil {
		return users.User{}, forced
	}
	if !ok {
		return users.User{}, api.InvalidCredentialsErr
	}

	f.mu.Lock()
	f.loggedIn = true
	f.mu.Unlock()
	return user, nil
}

func (f *FakeAuthAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogoutCalls++
	f.loggedIn = false
	return f.LogoutErr
}

func (f *FakeAuthAPI) CheckStatus(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.StatusCalls++
	forced := f.StatusErr
	loggedIn := f.loggedIn
	f.mu.Unlock()

	if f.BeforeStatusReturn != nil {
		f.BeforeStatusReturn()
	}
	if forced != nil {
		return false, forced
	}
	return loggedIn, nil
}

func (f *FakeAuthAPI) CurrentUser(ctx context.Context) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loggedIn {
		return users.User{}, api.SessionExpiredErr
	}
	return f.user, nil
}

func (f *FakeAuthAPI) VerifyPassword(ctx context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerifyCalls++
	if password != f.password {
		return api.PasswordMismatchErr
	}
	return nil
}

func (f *FakeAuthAPI) ClearClientCookies() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ClearCookieCalls++
}

// LoggedIn reports the fake's server-side session state.
func (f *FakeAuthAPI) LoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

// SetLoggedIn seeds server-side session state, e.g. for restore tests.
func (f *FakeAuthAPI) SetLoggedIn(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = v
}

var _ session.AuthAPI = (*FakeAuthAPI)(nil)
