package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profile   *profile.Manager
	Assistant *assistant.Client
	Version   string
}

// NewMCPServer creates an MCP server exposing the textbook assistant and the
// learner's preferences.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"primer",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("primer: ask the Physical AI & Humanoid Robotics textbook and manage learner preferences."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_textbook",
			mcp.WithDescription("Ask the textbook assistant a question. Follow-up questions continue the same conversation."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		scoped(deps, mcpAsk(deps)),
	)

	s.AddTool(
		mcp.NewTool("ask_about_selection",
			mcp.WithDescription("Ask a question about a passage selected from a textbook page."),
			mcp.WithString("selected_text", mcp.Description("The selected passage"), mcp.Required()),
			mcp.WithString("question", mcp.Description("Question about the passage"), mcp.Required()),
			mcp.WithString("page_url", mcp.Description("URL of the page the passage came from")),
		),
		scoped(deps, mcpAskSelection(deps)),
	)

	s.AddTool(
		mcp.NewTool("clear_conversation",
			mcp.WithDescription("Clear the transcript and start a new conversation."),
		),
		scoped(deps, mcpClear(deps)),
	)

	s.AddTool(
		mcp.NewTool("set_preference",
			mcp.WithDescription("Update a learner preference (persona, skillLevel, learningPace, language). An empty value unsets persona or skillLevel."),
			mcp.WithString("field", mcp.Description("Preference field"), mcp.Required(),
				mcp.Enum(string(profile.FieldPersona), string(profile.FieldSkillLevel), string(profile.FieldLearningPace), string(profile.FieldLanguage))),
			mcp.WithString("value", mcp.Description("New value")),
		),
		scoped(deps, mcpSetPreference),
	)

	s.AddResource(
		mcp.NewResource(
			"user://preferences",
			"Learner Preferences",
			mcp.WithResourceDescription("Current learner preferences as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePreferences(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://transcript",
			"Conversation Transcript",
			mcp.WithResourceDescription("Current assistant conversation as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	return s
}

// scoped injects the preference manager before running h.
func scoped(deps MCPDeps, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Profile != nil {
			ctx = profile.WithManager(ctx, deps.Profile)
		}
		return h(ctx, req)
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		turn, err := deps.Assistant.Ask(ctx, question)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return turnResult(turn), nil
	}
}

func mcpAskSelection(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		selected, err := req.RequireString("selected_text")
		if err != nil {
			return mcpError("selected_text is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		turn, err := deps.Assistant.AskAboutSelection(ctx, selected, question, req.GetString("page_url", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return turnResult(turn), nil
	}
}

func turnResult(turn assistant.Turn) *mcp.CallToolResult {
	if turn.Fallback {
		return mcpError(turn.Content)
	}
	var b strings.Builder
	b.WriteString(turn.Content)
	if len(turn.Sources) > 0 {
		b.WriteString("\n\nSources:")
		for _, s := range turn.Sources {
			fmt.Fprintf(&b, "\n- %s (%s)", s.Title, s.URL)
		}
	}
	return mcpText(b.String())
}

func mcpClear(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Assistant.Clear()
		return mcpText("Conversation cleared"), nil
	}
}

func mcpSetPreference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := profile.FromContext(ctx)
	if err != nil {
		return mcpError(err.Error()), nil
	}
	name, err := req.RequireString("field")
	if err != nil {
		return mcpError("field is required"), nil
	}
	field, err := profile.ParseField(name)
	if err != nil {
		return mcpError(err.Error()), nil
	}
	value := strings.TrimSpace(req.GetString("value", ""))

	if err := m.Update(field, value); err != nil {
		if errors.Is(err, profile.ErrRequiredField) {
			return mcpError(fmt.Sprintf("%s cannot be unset", field)), nil
		}
		return mcpError(fmt.Sprintf("failed to set preference: %v", err)), nil
	}
	return mcpText(fmt.Sprintf("Set %s = %s", field, profile.Label(value))), nil
}

func mcpResourcePreferences(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(preferencesResponse{Profile: deps.Profile.Get(), Summary: deps.Profile.Summary()})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preferences: %w", err)
		}
		return jsonResource(req, b), nil
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(chatResponse{
			ConversationID: deps.Assistant.ConversationID(),
			State:          deps.Assistant.State(),
			Turns:          deps.Assistant.Transcript(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}
		return jsonResource(req, b), nil
	}
}

func jsonResource(req mcp.ReadResourceRequest, b []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
