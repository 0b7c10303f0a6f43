package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/auth"
	"github.com/kalambet/primer/internal/metrics"
	"github.com/kalambet/primer/internal/profile"
	"github.com/kalambet/primer/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// HistoryStore lists recorded exchanges. Implemented by storage.Store.
type HistoryStore interface {
	RecentExchanges(limit int) ([]storage.Exchange, error)
}

type AppDeps struct {
	Profile   *profile.Manager
	Assistant *assistant.Client
	History   HistoryStore // optional; /history returns 404 when nil
	Metrics   *metrics.Metrics
	Token     string // optional; empty disables bearer auth
}

// NewAppHandler returns the local API. The preference manager is injected into
// every request context; handlers read it through profile.FromContext.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Use(withManager(deps.Profile))

		r.Get("/preferences", handleGetPreferences)
		r.Patch("/preferences", handlePatchPreferences)
		r.Delete("/preferences", handleResetPreferences)
		r.Post("/preferences/sync", handleSyncPreferences)
		r.Post("/preferences/pull", handlePullPreferences)

		r.Post("/auth/signin", handleSignIn)
		r.Post("/auth/signup", handleSignUp)
		r.Post("/auth/signout", handleSignOut)
		r.Get("/auth/session", handleSession)

		r.Get("/chat", handleGetChat(deps))
		r.Post("/chat", handleAsk(deps))
		r.Delete("/chat", handleClearChat(deps))
		r.Post("/chat/selection", handleAskSelection(deps))

		if deps.History != nil {
			r.Get("/history", handleHistory(deps))
		}
	})

	return r
}

func withManager(m *profile.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m != nil {
				r = r.WithContext(profile.WithManager(r.Context(), m))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type preferencesResponse struct {
	profile.Profile
	Summary string `json:"summary"`
}

func manager(w http.ResponseWriter, r *http.Request) (*profile.Manager, bool) {
	m, err := profile.FromContext(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
		return nil, false
	}
	return m, true
}

func writePreferences(w http.ResponseWriter, code int, m *profile.Manager) {
	writeJSON(w, code, preferencesResponse{Profile: m.Get(), Summary: m.Summary()})
}

func handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	writePreferences(w, http.StatusOK, m)
}

// handlePatchPreferences applies {"<field>": "<value>"|null, ...}. Every field is
// validated before any is applied.
func handlePatchPreferences(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}

	var body map[string]*string
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "no preference fields given")
		return
	}

	updates := make(map[profile.Field]string, len(body))
	for name, v := range body {
		f, err := profile.ParseField(name)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		val := ""
		if v != nil {
			val = *v
		}
		if err := profile.Validate(f, val); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		updates[f] = val
	}
	for _, f := range profile.Fields() {
		val, ok := updates[f]
		if !ok {
			continue
		}
		if err := m.Update(f, val); err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
			return
		}
	}
	writePreferences(w, http.StatusOK, m)
}

func handleResetPreferences(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	if err := m.Reset(); err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
		return
	}
	writePreferences(w, http.StatusOK, m)
}

func handleSyncPreferences(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	if err := m.Synchronize(r.Context()); err != nil {
		remoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func handlePullPreferences(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	if err := m.Hydrate(r.Context()); err != nil {
		remoteError(w, err)
		return
	}
	writePreferences(w, http.StatusOK, m)
}

func remoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrNotAuthenticated), errors.Is(err, profile.ErrNoCredential):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Persona      string `json:"persona"`
	SkillLevel   string `json:"skill_level"`
	LearningPace string `json:"learning_pace"`
}

type authResponse struct {
	User        *auth.User      `json:"user"`
	Preferences profile.Profile `json:"preferences"`
}

func handleSignIn(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := m.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		authError(w, err, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, Preferences: m.Get()})
}

func handleSignUp(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := m.SignUp(r.Context(), req.Email, req.Password, profile.SignUpDetails{
		FullName:     req.FullName,
		Persona:      profile.Persona(req.Persona),
		SkillLevel:   profile.SkillLevel(req.SkillLevel),
		LearningPace: profile.LearningPace(req.LearningPace),
	})
	if err != nil {
		authError(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{User: user, Preferences: m.Get()})
}

// authError maps user-facing rejections to rejectCode and everything else to 502.
func authError(w http.ResponseWriter, err error, rejectCode int) {
	var aerr *auth.Error
	switch {
	case errors.As(err, &aerr):
		httpError(w, rejectCode, "authentication_error", "%s", aerr.Message)
	case errors.Is(err, profile.ErrInvalidValue):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	}
}

func handleSignOut(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	if err := m.SignOut(r.Context()); err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func handleSession(w http.ResponseWriter, r *http.Request) {
	m, ok := manager(w, r)
	if !ok {
		return
	}
	info, err := m.Session(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type chatResponse struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	State          assistant.State  `json:"state"`
	Turns          []assistant.Turn `json:"turns"`
}

func handleGetChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, chatResponse{
			ConversationID: deps.Assistant.ConversationID(),
			State:          deps.Assistant.State(),
			Turns:          deps.Assistant.Transcript(),
		})
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type selectionRequest struct {
	SelectedText string `json:"selected_text"`
	Question     string `json:"question"`
	PageURL      string `json:"page_url"`
}

func handleAsk(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if !decodeBody(w, r, &req) {
			return
		}
		turn, err := deps.Assistant.Ask(r.Context(), req.Question)
		if err != nil {
			askError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, turn)
	}
}

func handleAskSelection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		turn, err := deps.Assistant.AskAboutSelection(r.Context(), req.SelectedText, req.Question, req.PageURL)
		if err != nil {
			askError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, turn)
	}
}

func askError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, assistant.ErrBusy):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
	}
}

func handleClearChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Assistant.Clear()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = min(n, 200)
		}
		exchanges, err := deps.History.RecentExchanges(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "failed to list history: %v", err)
			return
		}
		if exchanges == nil {
			exchanges = []storage.Exchange{}
		}
		writeJSON(w, http.StatusOK, exchanges)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
