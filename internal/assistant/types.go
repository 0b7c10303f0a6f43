package assistant

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a textbook passage cited by an answer.
type Source struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// Turn is one transcript entry. Fallback marks the canned reply appended when
// the backend could not answer.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_response"
)

// Health is the RAG service health report.
type Health struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type queryRequest struct {
	Query          string  `json:"query"`
	ConversationID string  `json:"conversation_id,omitempty"`
	MaxSources     int     `json:"max_sources"`
	Temperature    float64 `json:"temperature"`
}

type selectionRequest struct {
	SelectedText string `json:"selected_text"`
	Question     string `json:"question"`
	PageURL      string `json:"page_url,omitempty"`
}

type queryResponse struct {
	Answer         string   `json:"answer"`
	Sources        []Source `json:"sources"`
	ConversationID string   `json:"conversation_id"`
	TokensUsed     *int     `json:"tokens_used"`
}
