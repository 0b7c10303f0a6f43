package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/primer/internal/metrics"
)

// Snapshot is the server-side personalization profile. Nil means null.
type Snapshot struct {
	Persona            *string `json:"persona"`
	SkillLevel         *string `json:"skill_level"`
	LearningPace       *string `json:"learning_pace"`
	LanguagePreference *string `json:"language_preference"`
}

// StatusError is returned when a personalization endpoint answers non-2xx.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// Remote is the HTTP client for the personalization endpoints.
type Remote struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewRemote creates a Remote for baseURL. A nil httpClient uses http.DefaultClient.
func NewRemote(baseURL string, httpClient *http.Client, m *metrics.Metrics) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Remote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    m,
	}
}

// Sync uploads the local preferences for the authenticated user.
func (r *Remote) Sync(ctx context.Context, token string, p Profile) error {
	body, err := json.Marshal(snapshotOf(p))
	if err != nil {
		return fmt.Errorf("marshaling preferences: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/personalization/sync-from-localStorage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.Observe(metrics.EndpointSync, start, metrics.OutcomeTransport)
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	r.metrics.Observe(metrics.EndpointSync, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "sync preferences", Code: resp.StatusCode}
	}
	return nil
}

// Fetch downloads the server-side profile.
func (r *Remote) Fetch(ctx context.Context, token string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/personalization/profile", nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.Observe(metrics.EndpointProfile, start, metrics.OutcomeTransport)
		return Snapshot{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	r.metrics.Observe(metrics.EndpointProfile, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return Snapshot{}, &StatusError{Op: "fetch profile", Code: resp.StatusCode}
	}

	var s Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding profile: %w", err)
	}
	return s, nil
}

func snapshotOf(p Profile) Snapshot {
	return Snapshot{
		Persona:            optional(string(p.Persona)),
		SkillLevel:         optional(string(p.SkillLevel)),
		LearningPace:       optional(string(p.LearningPace)),
		LanguagePreference: optional(string(p.Language)),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
