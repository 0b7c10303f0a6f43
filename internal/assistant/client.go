// Package assistant is the client for the textbook's retrieval-augmented chat
// backend. It owns the conversation transcript.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/primer/internal/metrics"
	"github.com/kalambet/primer/internal/storage"
)

// FallbackMessage is appended in place of an answer when the backend fails.
const FallbackMessage = "Sorry, I encountered an error. Please try again or check that the backend server is running."

const (
	DefaultMaxSources  = 3
	DefaultTemperature = 0.7
)

var (
	ErrBusy          = errors.New("a question is already awaiting a response")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Recorder keeps a local log of completed exchanges. Implemented by storage.Store.
type Recorder interface {
	SaveExchange(e storage.Exchange) error
}

// Options tunes a Client. Zero MaxSources and Temperature take the defaults.
type Options struct {
	MaxSources  int
	Temperature float64
	HTTPClient  *http.Client
	Recorder    Recorder
	Metrics     *metrics.Metrics
}

// Client holds one conversation. At most one request is outstanding at a time.
type Client struct {
	baseURL string
	opts    Options
	now     func() time.Time

	mu             sync.Mutex
	turns          []Turn
	conversationID string
	busy           bool
	generation     uint64
}

func New(baseURL string, opts Options) *Client {
	if opts.MaxSources <= 0 {
		opts.MaxSources = DefaultMaxSources
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		now:     time.Now,
	}
}

// Ask sends question in the current conversation. The user turn is appended
// immediately; the returned assistant turn is either the answer or the
// fallback reply. Backend failures are never returned as errors.
func (c *Client) Ask(ctx context.Context, question string) (Turn, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Turn{}, ErrEmptyQuestion
	}

	gen, convID, err := c.begin(q)
	if err != nil {
		return Turn{}, err
	}

	req := queryRequest{
		Query:          q,
		ConversationID: convID,
		MaxSources:     c.opts.MaxSources,
		Temperature:    c.opts.Temperature,
	}
	resp, err := c.post(ctx, metrics.EndpointQuery, "/api/rag/query", req)
	return c.finish(gen, q, resp, err), nil
}

// AskAboutSelection asks about a passage of page text. It shares the transcript
// and failure policy of Ask.
func (c *Client) AskAboutSelection(ctx context.Context, selected, question, pageURL string) (Turn, error) {
	sel := strings.TrimSpace(selected)
	q := strings.TrimSpace(question)
	if sel == "" || q == "" {
		return Turn{}, ErrEmptyQuestion
	}

	content := quote(sel) + "\n\n" + q
	gen, _, err := c.begin(content)
	if err != nil {
		return Turn{}, err
	}

	req := selectionRequest{SelectedText: sel, Question: q, PageURL: pageURL}
	resp, err := c.post(ctx, metrics.EndpointSelect, "/api/rag/query-selection", req)
	return c.finish(gen, content, resp, err), nil
}

// begin appends the user turn and marks the client busy.
func (c *Client) begin(content string) (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return 0, "", ErrBusy
	}
	c.busy = true
	c.turns = append(c.turns, Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: c.now(),
	})
	return c.generation, c.conversationID, nil
}

// finish appends the assistant turn unless the transcript was cleared while
// the request was in flight.
func (c *Client) finish(gen uint64, question string, resp queryResponse, err error) Turn {
	reply := Turn{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: c.now(),
	}
	if err != nil {
		slog.Error("assistant request failed", "error", err)
		reply.Content = FallbackMessage
		reply.Fallback = true
	} else {
		reply.Content = resp.Answer
		reply.Sources = resp.Sources
	}

	c.mu.Lock()
	c.busy = false
	stale := gen != c.generation
	if !stale {
		c.turns = append(c.turns, reply)
		if !reply.Fallback && c.conversationID == "" && resp.ConversationID != "" {
			c.conversationID = resp.ConversationID
		}
	}
	convID := c.conversationID
	c.mu.Unlock()

	if stale {
		slog.Debug("dropping reply for cleared conversation")
		return reply
	}
	c.record(convID, question, reply)
	return reply
}

func (c *Client) record(convID, question string, reply Turn) {
	if c.opts.Recorder == nil {
		return
	}
	status := storage.StatusCompleted
	if reply.Fallback {
		status = storage.StatusFallback
	}
	sources := "[]"
	if len(reply.Sources) > 0 {
		if b, err := json.Marshal(reply.Sources); err == nil {
			sources = string(b)
		}
	}
	err := c.opts.Recorder.SaveExchange(storage.Exchange{
		ID:             reply.ID,
		CreatedAt:      reply.CreatedAt,
		ConversationID: convID,
		Question:       question,
		Answer:         reply.Content,
		Sources:        sources,
		Status:         status,
	})
	if err != nil {
		slog.Warn("failed to record exchange", "error", err)
	}
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload any) (queryResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return queryResponse{}, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return queryResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.opts.Metrics.Observe(endpoint, start, metrics.OutcomeTransport)
		return queryResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	c.opts.Metrics.Observe(endpoint, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return queryResponse{}, fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return queryResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}

// Clear empties the transcript and starts a new conversation. A reply still
// in flight is discarded when it arrives.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
	c.conversationID = ""
	c.generation++
}

// Transcript returns a copy of the turns in order.
func (c *Client) Transcript() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return StateAwaiting
	}
	return StateIdle
}

// Health reports the RAG service status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/rag/health", nil)
	if err != nil {
		return Health{}, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.opts.Metrics.Observe(metrics.EndpointRAGCheck, start, metrics.OutcomeTransport)
		return Health{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	c.opts.Metrics.Observe(metrics.EndpointRAGCheck, start, metrics.Outcome(resp.StatusCode, nil))

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
