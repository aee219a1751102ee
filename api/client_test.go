package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Eklista/medialab-sub000/api"
	"github.com/Eklista/medialab-sub000/users"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "maria@medialab.test"
	testPassword = "Sup3rSecret"
)

const sessionCookie = "medialab_session"

// fakeAuthServer is a minimal stand-in for the platform's auth API. It
// authenticates with bcrypt, issues an opaque httpOnly session cookie, and
// answers the status/me/verify endpoints from its session table.
type fakeAuthServer struct {
	mu           sync.Mutex
	passwordHash []byte
	sessions     map[string]bool
	server       *httptest.Server
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	f := &fakeAuthServer{passwordHash: hash, sessions: make(map[string]bool)}

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/auth/login", f.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/logout", f.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/auth/status", f.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/auth/me", f.handleMe).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/auth/verify-password", f.handleVerify).Methods(http.MethodPost)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAuthServer) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[cookie.Value]
}

func (f *fakeAuthServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Email != testEmail || bcrypt.CompareHashAndPassword(f.passwordHash, []byte(req.Password)) != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	id := uuid.NewString()
	f.mu.Lock()
	f.sessions[id] = true
	f.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, HttpOnly: true, Path: "/"})
	w.Header().Set("Content-Type", "application/json")
	// Deliberately mixes snake_case and camelCase, like the real API.
	json.NewEncoder(w).Encode(map[string]any{
		"user": map[string]any{
			"id":          7,
			"email":       testEmail,
			"firstName":   "María",
			"last_name":   "García",
			"role":        "collaborator",
			"permissions": []string{"projects.view"},
		},
	})
}

func (f *fakeAuthServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		f.mu.Lock()
		delete(f.sessions, cookie.Value)
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeAuthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"valid": f.authenticated(r)})
}

func (f *fakeAuthServer) handleMe(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":          7,
		"email":       testEmail,
		"first_name":  "María",
		"lastName":    "García",
		"role_name":   "collaborator",
		"permissions": []string{"projects.view", "projects.edit"},
	})
}

func (f *fakeAuthServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if bcrypt.CompareHashAndPassword(f.passwordHash, []byte(req.Password)) != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newTestClient(t *testing.T, f *fakeAuthServer) *api.Client {
	t.Helper()
	client, err := api.NewClient(f.server.URL)
	require.NoError(t, err)
	return client
}

func TestLoginSuccessCarriesCookie(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	user, err := client.Login(ctx, api.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.EqualValues(t, 7, user.ID)
	require.Equal(t, "María", user.FirstName)
	require.Equal(t, "García", user.LastName)
	require.Equal(t, users.RoleType("collaborator"), user.Role)
	require.True(t, user.Permissions.Has("projects.view"))

	// The cookie set by login must authenticate subsequent calls.
	valid, err := client.CheckStatus(ctx)
	require.NoError(t, err)
	require.True(t, valid)

	me, err := client.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "María", me.FirstName, "camelCase alias reconciled")
	require.Equal(t, "García", me.LastName, "snake_case alias reconciled")
	require.Equal(t, users.RoleType("collaborator"), me.Role)
}

func TestLoginBadPassword(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)

	_, err := client.Login(context.Background(), api.Credentials{Email: testEmail, Password: "wrong"})
	require.ErrorIs(t, err, api.InvalidCredentialsErr)

	valid, err := client.CheckStatus(context.Background())
	require.NoError(t, err)
	require.False(t, valid)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	_, err := client.Login(ctx, api.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx))

	valid, err := client.CheckStatus(ctx)
	require.NoError(t, err)
	require.False(t, valid)

	_, err = client.CurrentUser(ctx)
	require.ErrorIs(t, err, api.SessionExpiredErr)
}

func TestVerifyPassword(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	_, err := client.Login(ctx, api.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, client.VerifyPassword(ctx, testPassword))
	require.ErrorIs(t, client.VerifyPassword(ctx, "nope"), api.PasswordMismatchErr)
}

func TestClearClientCookiesDropsSessionClientSide(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)
	ctx := context.Background()

	_, err := client.Login(ctx, api.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	client.ClearClientCookies()

	valid, err := client.CheckStatus(ctx)
	require.NoError(t, err)
	require.False(t, valid, "no cookie travels after the jar is cleared")
}

func TestNetworkFailureMapsToServiceUnavailable(t *testing.T) {
	f := newFakeAuthServer(t)
	client := newTestClient(t, f)
	f.server.Close()

	_, err := client.CheckStatus(context.Background())
	require.ErrorIs(t, err, api.ServiceUnavailableErr)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := api.NewClient("ws://wrong-scheme")
	require.Error(t, err)
}
