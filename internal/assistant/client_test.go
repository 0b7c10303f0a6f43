package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/primer/internal/storage"
)

type ragServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []map[string]any
	fail     bool
	release  chan struct{}
}

func newRAGServer(t *testing.T) *ragServer {
	t.Helper()
	rs := &ragServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/rag/health" {
			fmt.Fprint(w, `{"status":"healthy","components":{"model":"gpt-4o-mini"}}`)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		rs.mu.Lock()
		rs.requests = append(rs.requests, body)
		n := len(rs.requests)
		fail := rs.fail
		release := rs.release
		rs.mu.Unlock()

		if release != nil {
			<-release
		}
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"detail":"Failed to process query"}`)
			return
		}
		fmt.Fprintf(w, `{"answer":"answer %d","sources":[{"title":"Intro","url":"/docs/intro","excerpt":"ROS 2 is...","score":0.9}],"conversation_id":"abc"}`, n)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *ragServer) request(i int) map[string]any {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.requests[i]
}

type memRecorder struct {
	mu        sync.Mutex
	exchanges []storage.Exchange
}

func (m *memRecorder) SaveExchange(e storage.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, e)
	return nil
}

func TestAsk_TwoTurnsReuseConversation(t *testing.T) {
	rs := newRAGServer(t)
	c := New(rs.URL, Options{MaxSources: 3, Temperature: 0.7})

	reply, err := c.Ask(context.Background(), "  What is ROS 2?  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Role != RoleAssistant || reply.Content != "answer 1" || len(reply.Sources) != 1 {
		t.Errorf("reply = %+v", reply)
	}
	if c.ConversationID() != "abc" {
		t.Errorf("conversation id = %q, want abc", c.ConversationID())
	}

	first := rs.request(0)
	if first["query"] != "What is ROS 2?" {
		t.Errorf("query = %v", first["query"])
	}
	if _, ok := first["conversation_id"]; ok {
		t.Error("first request must not carry a conversation_id")
	}
	if first["max_sources"] != float64(3) || first["temperature"] != 0.7 {
		t.Errorf("tuning = %v / %v", first["max_sources"], first["temperature"])
	}

	if _, err := c.Ask(context.Background(), "And Gazebo?"); err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if got := rs.request(1)["conversation_id"]; got != "abc" {
		t.Errorf("second conversation_id = %v, want abc", got)
	}

	turns := c.Transcript()
	if len(turns) != 4 {
		t.Fatalf("transcript has %d turns, want 4", len(turns))
	}
	roles := []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, r := range roles {
		if turns[i].Role != r {
			t.Errorf("turn %d role = %s, want %s", i, turns[i].Role, r)
		}
	}
	if turns[2].Content != "And Gazebo?" {
		t.Errorf("turn 2 = %q", turns[2].Content)
	}
	if c.State() != StateIdle {
		t.Errorf("state = %s, want idle", c.State())
	}
}

func TestAsk_FallbackOnFailure(t *testing.T) {
	rs := newRAGServer(t)
	rs.fail = true
	rec := &memRecorder{}
	c := New(rs.URL, Options{Recorder: rec})

	reply, err := c.Ask(context.Background(), "What is SLAM?")
	if err != nil {
		t.Fatalf("backend failure must not surface as error: %v", err)
	}
	if reply.Content != FallbackMessage || !reply.Fallback {
		t.Errorf("reply = %+v, want fallback", reply)
	}
	turns := c.Transcript()
	if len(turns) != 2 || turns[0].Content != "What is SLAM?" || turns[1].Content != FallbackMessage {
		t.Errorf("transcript = %+v", turns)
	}
	if c.ConversationID() != "" {
		t.Error("failed exchange must not set a conversation id")
	}
	if len(rec.exchanges) != 1 || rec.exchanges[0].Status != storage.StatusFallback {
		t.Errorf("recorded = %+v", rec.exchanges)
	}
}

func TestAsk_TransportFailure(t *testing.T) {
	rs := newRAGServer(t)
	url := rs.URL
	rs.Close()

	c := New(url, Options{})
	reply, err := c.Ask(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if reply.Content != FallbackMessage {
		t.Errorf("reply = %q", reply.Content)
	}
}

func TestAsk_Empty(t *testing.T) {
	c := New("http://127.0.0.1:1", Options{})
	if _, err := c.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
	if len(c.Transcript()) != 0 {
		t.Error("empty question must not touch the transcript")
	}
}

func TestClear_DropsConversationID(t *testing.T) {
	rs := newRAGServer(t)
	c := New(rs.URL, Options{})

	c.Ask(context.Background(), "first")
	c.Clear()
	if len(c.Transcript()) != 0 || c.ConversationID() != "" {
		t.Fatal("Clear should empty transcript and id")
	}

	c.Ask(context.Background(), "second")
	if _, ok := rs.request(1)["conversation_id"]; ok {
		t.Error("request after Clear must not carry the old conversation id")
	}
}

func TestAsk_BusyWhileAwaiting(t *testing.T) {
	rs := newRAGServer(t)
	rs.release = make(chan struct{})
	c := New(rs.URL, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Ask(context.Background(), "slow question")
	}()

	waitFor(t, func() bool { return c.State() == StateAwaiting })

	if _, err := c.Ask(context.Background(), "impatient"); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
	turns := c.Transcript()
	if len(turns) != 1 || turns[0].Role != RoleUser {
		t.Errorf("transcript while awaiting = %+v", turns)
	}

	close(rs.release)
	<-done
	if c.State() != StateIdle || len(c.Transcript()) != 2 {
		t.Errorf("after reply: state %s, %d turns", c.State(), len(c.Transcript()))
	}
}

func TestClear_WhileAwaitingDropsReply(t *testing.T) {
	rs := newRAGServer(t)
	rs.release = make(chan struct{})
	c := New(rs.URL, Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Ask(context.Background(), "question")
	}()
	waitFor(t, func() bool { return c.State() == StateAwaiting })

	c.Clear()
	close(rs.release)
	<-done

	if len(c.Transcript()) != 0 {
		t.Errorf("stale reply appended: %+v", c.Transcript())
	}
	if c.ConversationID() != "" {
		t.Error("stale reply must not set the conversation id")
	}
}

func TestAskAboutSelection(t *testing.T) {
	rs := newRAGServer(t)
	rec := &memRecorder{}
	c := New(rs.URL, Options{Recorder: rec})

	reply, err := c.AskAboutSelection(context.Background(), "URDF describes links\nand joints", "What is a joint?", "/docs/urdf")
	if err != nil {
		t.Fatalf("AskAboutSelection: %v", err)
	}
	if reply.Content != "answer 1" {
		t.Errorf("reply = %q", reply.Content)
	}
	body := rs.request(0)
	if body["selected_text"] != "URDF describes links\nand joints" || body["question"] != "What is a joint?" || body["page_url"] != "/docs/urdf" {
		t.Errorf("body = %v", body)
	}
	user := c.Transcript()[0]
	if !strings.HasPrefix(user.Content, "> URDF describes links\n> and joints") || !strings.HasSuffix(user.Content, "What is a joint?") {
		t.Errorf("user turn = %q", user.Content)
	}
	if len(rec.exchanges) != 1 || rec.exchanges[0].Status != storage.StatusCompleted || !strings.Contains(rec.exchanges[0].Sources, "Intro") {
		t.Errorf("recorded = %+v", rec.exchanges)
	}
}

func TestHealth(t *testing.T) {
	rs := newRAGServer(t)
	h, err := New(rs.URL, Options{}).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.Components["model"] != "gpt-4o-mini" {
		t.Errorf("health = %+v", h)
	}
}
