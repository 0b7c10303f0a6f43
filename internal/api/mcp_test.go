package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/primer/internal/profile"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return MCPDeps{Profile: env.profile, Assistant: env.assistant}, env
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_AskTextbook(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := scoped(deps, mcpAsk(deps))

	result, err := handler(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{
		"question": "What is ROS 2?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.HasPrefix(text, "Answer to What is ROS 2?") || !strings.Contains(text, "- ROS 2 Basics (/docs/ros2)") {
		t.Errorf("text = %q", text)
	}

	handler(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{"question": "More?"}))
	if env.backend.queries[1]["conversation_id"] != "abc" {
		t.Errorf("follow-up should reuse conversation id, got %v", env.backend.queries[1]["conversation_id"])
	}
}

func TestMCPTool_AskTextbook_Fallback(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{"question": "boom"}))
	if !result.IsError || !strings.HasPrefix(toolText(t, result), "Sorry, I encountered an error") {
		t.Errorf("fallback result = %+v", result)
	}
}

func TestMCPTool_AskTextbook_MissingQuestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{}))
	if !result.IsError || toolText(t, result) != "question is required" {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_AskAboutSelection(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	result, err := mcpAskSelection(deps)(context.Background(), makeCallToolRequest("ask_about_selection", map[string]any{
		"selected_text": "Bipedal locomotion is hard.",
		"question":      "Why?",
	}))
	if err != nil || result.IsError {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	if toolText(t, result) != "About the selection" {
		t.Errorf("text = %q", toolText(t, result))
	}
	if turns := env.assistant.Transcript(); len(turns) != 2 || !strings.HasPrefix(turns[0].Content, "> Bipedal") {
		t.Errorf("transcript = %+v", turns)
	}
}

func TestMCPTool_ClearConversation(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	mcpAsk(deps)(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{"question": "hi"}))

	result, _ := mcpClear(deps)(context.Background(), makeCallToolRequest("clear_conversation", nil))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if env.assistant.ConversationID() != "" || len(env.assistant.Transcript()) != 0 {
		t.Error("conversation not cleared")
	}
}

func TestMCPTool_SetPreference(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := scoped(deps, mcpSetPreference)

	result, err := handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{
		"field": "persona",
		"value": "self_learner",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "Set persona = Self-Learner" {
		t.Fatalf("unexpected response: %s", text)
	}
	if env.profile.Persona() != profile.PersonaSelfLearner {
		t.Fatalf("persona = %q", env.profile.Persona())
	}

	result, _ = handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{"field": "language", "value": ""}))
	if !result.IsError || toolText(t, result) != "language cannot be unset" {
		t.Errorf("unset language result = %q", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{"field": "persona", "value": "pirate"}))
	if !result.IsError {
		t.Error("invalid value should be a tool error")
	}
}

func TestMCPTool_SetPreference_OutsideScope(t *testing.T) {
	result, _ := mcpSetPreference(context.Background(), makeCallToolRequest("set_preference", map[string]any{"field": "persona", "value": "student"}))
	if !result.IsError {
		t.Error("expected error without an injected manager")
	}
}

func TestMCPResource_Preferences(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	env.profile.Update(profile.FieldSkillLevel, "advanced")

	contents, err := mcpResourcePreferences(deps)(context.Background(), makeReadResourceRequest("user://preferences"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "user://preferences" || tc.MIMEType != "application/json" {
		t.Errorf("uri/mime = %s %s", tc.URI, tc.MIMEType)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["skillLevel"] != "advanced" || got["summary"] == "" {
		t.Errorf("preferences = %v", got)
	}
}

func TestMCPResource_Transcript(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	mcpAsk(deps)(context.Background(), makeCallToolRequest("ask_textbook", map[string]any{"question": "hi"}))

	contents, err := mcpResourceTranscript(deps)(context.Background(), makeReadResourceRequest("chat://transcript"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	var chat chatResponse
	if err := json.Unmarshal([]byte(tc.Text), &chat); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if chat.ConversationID != "abc" || len(chat.Turns) != 2 {
		t.Errorf("transcript = %+v", chat)
	}
}

func TestMCPServer_ConcurrentPreferenceCalls(t *testing.T) {
	deps, env := newTestMCPDeps(t)
	handler := scoped(deps, mcpSetPreference)

	values := profile.Options(profile.FieldPersona)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			handler(context.Background(), makeCallToolRequest("set_preference", map[string]any{"field": "persona", "value": v}))
		}(values[i%len(values)])
	}
	wg.Wait()

	got := string(env.profile.Persona())
	found := false
	for _, v := range values {
		if v == got {
			found = true
		}
	}
	if !found {
		t.Errorf("persona = %q, want one of %v", got, values)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
