package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/auth"
	"github.com/kalambet/primer/internal/metrics"
	"github.com/kalambet/primer/internal/profile"
	"github.com/kalambet/primer/internal/storage"
)

// fakeBackend mimics the textbook backend's auth, personalization and RAG routes.
type fakeBackend struct {
	*httptest.Server

	mu         sync.Mutex
	syncBodies []map[string]any
	queries    []map[string]any
	signOutErr bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Incorrect email or password"}`)
			return
		}
		writeSession(w, http.StatusOK, "tok-1", body["email"])
	})
	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		writeSession(w, http.StatusCreated, "tok-2", body["email"])
	})
	mux.HandleFunc("POST /api/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fail := fb.signOutErr
		fb.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"message":"Signed out successfully"}`)
	})
	mux.HandleFunc("GET /api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			fmt.Fprint(w, `{"authenticated":false,"user":null}`)
			return
		}
		fmt.Fprint(w, `{"authenticated":true,"user":{"id":"u-1","email":"ada@example.com","full_name":"Ada","created_at":"2025-12-13T00:00:00Z"}}`)
	})
	mux.HandleFunc("GET /api/personalization/profile", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"persona":"educator","skill_level":"advanced","learning_pace":"extended","language_preference":null}`)
	})
	mux.HandleFunc("POST /api/personalization/sync-from-localStorage", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.syncBodies = append(fb.syncBodies, body)
		fb.mu.Unlock()
		fmt.Fprint(w, `{"message":"synced"}`)
	})
	mux.HandleFunc("POST /api/rag/query", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.queries = append(fb.queries, body)
		fb.mu.Unlock()
		if body["query"] == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"answer":"Answer to %s","sources":[{"title":"ROS 2 Basics","url":"/docs/ros2","excerpt":"...","score":0.8}],"conversation_id":"abc"}`, body["query"])
	})
	mux.HandleFunc("POST /api/rag/query-selection", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"answer":"About the selection","sources":[],"conversation_id":"sel-1"}`)
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func writeSession(w http.ResponseWriter, code int, token, email string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":86400,"user":{"id":"u-1","email":%q,"full_name":null,"created_at":"2025-12-13T00:00:00Z"}}`, token, email)
}

type memCreds struct {
	mu    sync.Mutex
	token string
}

func (c *memCreds) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", errors.New("no token")
	}
	return c.token, nil
}

func (c *memCreds) SetToken(tok string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	return nil
}

func (c *memCreds) ClearToken() error { return c.SetToken("") }

type testEnv struct {
	backend   *fakeBackend
	store     *storage.Store
	creds     *memCreds
	profile   *profile.Manager
	assistant *assistant.Client
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb := newFakeBackend(t)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	creds := &memCreds{}
	httpClient := auth.NewHTTPClient()
	gw := auth.New(fb.URL, httpClient, auth.WithTokenSource(creds), auth.WithMetrics(m))
	mgr := profile.NewManager(profile.Deps{
		Store:       store,
		Credentials: creds,
		Gateway:     gw,
		Remote:      profile.NewRemote(fb.URL, httpClient, m),
	})
	if err := mgr.Load(); err != nil {
		t.Fatalf("loading preferences: %v", err)
	}
	asst := assistant.New(fb.URL, assistant.Options{HTTPClient: httpClient, Recorder: store, Metrics: m})

	return &testEnv{backend: fb, store: store, creds: creds, profile: mgr, assistant: asst, metrics: m}
}
