//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/manosakhi/internal/domain"
	"github.com/ashureev/manosakhi/internal/identity"
	"github.com/ashureev/manosakhi/internal/lexicon"
	"github.com/ashureev/manosakhi/internal/store"
)

type fakeRepo struct {
	store.Repository

	mu      sync.Mutex
	users   map[string]*domain.User
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }

type fakeRemote struct {
	ids []string
}

func (f fakeRemote) RemoteEnabled() bool    { return len(f.ids) > 0 }
func (f fakeRemote) CandidateIDs() []string { return f.ids }

type staticLexicon struct{ l *lexicon.Lexicon }

func (s staticLexicon) Current() *lexicon.Lexicon { return s.l }

func newTestHandler(repo *fakeRepo, remote fakeRemote) *Handler {
	return NewHandler(repo, remote, staticLexicon{lexicon.Default()}, time.Hour)
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusConflict, "busy")

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "busy" {
		t.Errorf("Expected error=busy, got %v", got)
	}
}

func TestGetMe(t *testing.T) {
	repo := newFakeRepo()
	repo.users["anon_1"] = &domain.User{UserID: "anon_1", Username: "guest-1"}
	h := newTestHandler(repo, fakeRemote{})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(identity.WithIdentity(req.Context(), "anon_1", "tab-9"))
	w := httptest.NewRecorder()
	h.GetMe(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["username"] != "guest-1" || got["session_id"] != "tab-9" {
		t.Errorf("unexpected body %v", got)
	}
	if got["session_ttl"] != float64(3600) {
		t.Errorf("session_ttl = %v, want 3600", got["session_ttl"])
	}
}

func TestGetMeWithoutIdentity(t *testing.T) {
	h := newTestHandler(newFakeRepo(), fakeRemote{})
	w := httptest.NewRecorder()
	h.GetMe(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestGetConfig(t *testing.T) {
	h := newTestHandler(newFakeRepo(), fakeRemote{ids: []string{"hf:model-a"}})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got struct {
		RemoteEnabled  bool     `json:"remote_enabled"`
		Candidates     []string `json:"candidates"`
		LexiconVersion string   `json:"lexicon_version"`
		Disclaimer     string   `json:"disclaimer"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.RemoteEnabled || len(got.Candidates) != 1 || got.Candidates[0] != "hf:model-a" {
		t.Errorf("unexpected remote info %+v", got)
	}
	if got.LexiconVersion == "" || got.Disclaimer == "" {
		t.Errorf("lexicon info missing: %+v", got)
	}
}

func TestHealth(t *testing.T) {
	repo := newFakeRepo()
	h := newTestHandler(repo, fakeRemote{})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	repo.pingErr = errors.New("disk gone")
	w = httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
