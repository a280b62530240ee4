package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	authcore "github.com/timetrax/authcore"
	"github.com/timetrax/authcore/password"
	"github.com/timetrax/authcore/permission"
)

type staticStore struct {
	principals map[string]*authcore.Principal
	roles      map[string]authcore.RoleDefinition
	fetchErr   error
}

func (s *staticStore) FetchByUsername(_ context.Context, username string) (*authcore.Principal, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	p, ok := s.principals[username]
	if !ok {
		return nil, authcore.ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *staticStore) PersistPasswordChange(_ context.Context, _ *authcore.Principal, _ string, _ []string) error {
	return nil
}

func (s *staticStore) PersistLockoutState(_ context.Context, p *authcore.Principal, locked bool, attempts int) error {
	stored, ok := s.principals[p.Username]
	if ok {
		stored.Locked = locked
		stored.FailedAttempts = attempts
	}
	return nil
}

func (s *staticStore) FetchPermissions(_ context.Context, roleName string) (authcore.RoleDefinition, error) {
	def, ok := s.roles[roleName]
	if !ok {
		return authcore.RoleDefinition{}, authcore.ErrRoleNotFound
	}
	return def, nil
}

func newTestEngine(t *testing.T) (*authcore.Engine, *staticStore) {
	t.Helper()

	store := &staticStore{
		principals: make(map[string]*authcore.Principal),
		roles: map[string]authcore.RoleDefinition{
			"USER": {
				Permissions: []permission.Permission{
					{Resource: "TASK", Action: permission.ActionRead},
				},
				CanSelfServicePassword: true,
			},
		},
	}

	cfg := authcore.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	// Keep the retry pause out of test time.
	cfg.Store.RetryBackoff = time.Millisecond
	// Cheapest accepted hashing cost; these tests exercise HTTP plumbing,
	// not Argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16

	engine, err := authcore.New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithRoleStore(store).
		WithResources("TASK", "EXPENSE").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	store.principals["alice"] = &authcore.Principal{
		ID:           "p-1",
		Username:     "alice",
		PasswordHash: hashPassword(t),
		Role:         "USER",
		Enabled:      true,
	}
	return engine, store
}

const testPassword = "Str0ng-Pass!x"

func hashPassword(t *testing.T) string {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := h.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return hash
}

func login(t *testing.T, engine *authcore.Engine) string {
	t.Helper()
	pair, err := engine.Login(context.Background(), "alice", testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair.AccessToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			http.Error(w, "no principal", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardAttachesPrincipal(t *testing.T) {
	engine, _ := newTestEngine(t)
	access := login(t, engine)

	handler := Guard(engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestGuardCollapsesFailuresToOneAnswer(t *testing.T) {
	engine, _ := newTestEngine(t)
	access := login(t, engine)

	revoked := login(t, engine)
	if err := engine.Logout(context.Background(), revoked); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	lockedToken := access
	// Lock the account after issuing: the token stays cryptographically
	// valid but the live state check must reject it.
	if err := engine.LockAccount(context.Background(), "alice"); err != nil {
		t.Fatalf("LockAccount: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"revoked token", "Bearer " + revoked},
		{"locked account", "Bearer " + lockedToken},
	}
	handler := Guard(engine)(okHandler())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != "invalid credentials" {
				t.Fatalf("body = %q, want the one collapsed answer", body)
			}
		})
	}
}

func TestGuardPublicRouteSkipsAuthentication(t *testing.T) {
	engine, _ := newTestEngine(t)

	public := func(r *http.Request) bool { return r.URL.Path == "/health" }
	handler := Guard(engine, WithPublicRoutes(public))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); ok {
			http.Error(w, "unexpected principal", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for public route", rec.Code)
	}
}

func TestGuardStoreOutageIs503(t *testing.T) {
	engine, store := newTestEngine(t)
	access := login(t, engine)

	store.fetchErr = errFetch{}

	handler := Guard(engine)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 on store outage", rec.Code)
	}
}

type errFetch struct{}

func (errFetch) Error() string { return "connection refused" }

func TestRequireEnforcesPermission(t *testing.T) {
	engine, _ := newTestEngine(t)
	access := login(t, engine)

	chain := func(resource permission.Resource, action permission.Action) http.Handler {
		return Guard(engine)(Require(engine, resource, action)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
	}

	t.Run("granted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		chain("TASK", permission.ActionRead).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/tasks/1", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		chain("TASK", permission.ActionDelete).ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("without guard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		rec := httptest.NewRecorder()
		Require(engine, "TASK", permission.ActionRead)(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401 without a principal", rec.Code)
		}
	})
}
