package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/store"
)

type fakeRepo struct {
	store.Repository

	mu      sync.Mutex
	users   map[string]*domain.User
	touched int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *user
	f.users[user.UserID] = &cp
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if u, ok := f.users[userID]; ok {
		u.LastSeenAt = lastSeen
	}
	return nil
}

func serve(t *testing.T, repo store.Repository, req *http.Request) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()
	var got context.Context
	h := Middleware(repo, true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Context()
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, got
}

func TestMiddlewareIssuesAnonymousIdentity(t *testing.T) {
	repo := newFakeRepo()
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)

	w, ctx := serve(t, repo, req)
	if ctx == nil {
		t.Fatal("next handler was not called")
	}

	userID := UserIDFromContext(ctx)
	if !isValidAnonID(userID) {
		t.Fatalf("unexpected user id %q", userID)
	}
	if SessionIDFromContext(ctx) != DefaultSessionIDValue {
		t.Errorf("session id = %q, want default", SessionIDFromContext(ctx))
	}
	if _, ok := repo.users[userID]; !ok {
		t.Error("user was not persisted")
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != userID {
		t.Fatalf("cookie not set to user id, got %+v", cookie)
	}
	if !cookie.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
}

func TestMiddlewareReusesCookieAndSessionHeader(t *testing.T) {
	repo := newFakeRepo()
	id := generateAnonID()

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	req.Header.Set(SessionHeaderName, "tab-42")

	_, ctx := serve(t, repo, req)
	if got := UserIDFromContext(ctx); got != id {
		t.Errorf("user id = %q, want %q", got, id)
	}
	if got := SessionIDFromContext(ctx); got != "tab-42" {
		t.Errorf("session id = %q, want tab-42", got)
	}
	if got := UsernameFromContext(ctx); got != deriveUsername(id) {
		t.Errorf("username = %q", got)
	}
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	repo := newFakeRepo()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "admin"})

	_, ctx := serve(t, repo, req)
	if got := UserIDFromContext(ctx); got == "admin" || !isValidAnonID(got) {
		t.Errorf("forged cookie accepted: %q", got)
	}
}

func TestSessionIDFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=abc_1", nil)
	if got := sessionIDFromRequest(req); got != "abc_1" {
		t.Errorf("sessionIDFromRequest = %q", got)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":              DefaultSessionIDValue,
		"  tab-1  ":     "tab-1",
		"bad id":        DefaultSessionIDValue,
		"../etc/passwd": DefaultSessionIDValue,
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureUserTouchesLastSeenSparingly(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if err := ensureUser(ctx, repo, "anon_x", now); err != nil {
		t.Fatal(err)
	}
	if err := ensureUser(ctx, repo, "anon_x", now.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	if repo.touched != 0 {
		t.Errorf("touched = %d, want 0 within resolution", repo.touched)
	}
	if err := ensureUser(ctx, repo, "anon_x", now.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if repo.touched != 1 {
		t.Errorf("touched = %d, want 1", repo.touched)
	}
}
