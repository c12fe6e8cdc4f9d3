package agent

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	providertypes "concierge/pkg/provider/types"
)

type fakeClient struct {
	mu           sync.Mutex
	healthErr    error
	sessionErr   error
	promptErr    error
	sessions     int
	prompts      []fakePrompt
	responseText string
}

type fakePrompt struct {
	sessionID string
	prompt    string
	model     string
	system    string
}

func (f *fakeClient) Health(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthErr
}

func (f *fakeClient) CreateSession(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	f.sessions++
	return "session-" + strconv.Itoa(f.sessions), nil
}

func (f *fakeClient) Prompt(_ context.Context, sessionID string, prompt string, model string, system string) (providertypes.PromptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptErr != nil {
		return providertypes.PromptResult{}, f.promptErr
	}
	f.prompts = append(f.prompts, fakePrompt{sessionID: sessionID, prompt: prompt, model: model, system: system})
	text := f.responseText
	if text == "" {
		text = "reply-" + strconv.Itoa(len(f.prompts))
	}
	return providertypes.PromptResult{Text: text}, nil
}

func (f *fakeClient) recordedPrompts() []fakePrompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakePrompt, len(f.prompts))
	copy(out, f.prompts)
	return out
}

func TestInstanceCreatesSessionLazily(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	instance := NewInstance(client, "openai/gpt-5.2", "be brief", "concierge:test")

	if got := instance.SessionID(); got != "" {
		t.Fatalf("session id before first prompt = %q, want empty", got)
	}

	result, err := instance.Prompt(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Prompt error: %v", err)
	}
	if result.Text != "reply-1" {
		t.Fatalf("result = %q", result.Text)
	}
	if got := instance.SessionID(); got != "session-1" {
		t.Fatalf("session id = %q, want session-1", got)
	}

	if _, err := instance.Prompt(context.Background(), "again"); err != nil {
		t.Fatalf("second Prompt error: %v", err)
	}

	prompts := client.recordedPrompts()
	if len(prompts) != 2 {
		t.Fatalf("prompt count = %d, want 2", len(prompts))
	}
	if prompts[1].sessionID != "session-1" {
		t.Fatal("second prompt did not reuse the session")
	}
	if prompts[0].system != "be brief" {
		t.Fatalf("system = %q, want profile text", prompts[0].system)
	}
}

func TestInstanceRejectsEmptyPrompt(t *testing.T) {
	t.Parallel()

	instance := NewInstance(&fakeClient{}, "m", "", "t")
	if _, err := instance.Prompt(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestInstanceRecordsHistory(t *testing.T) {
	t.Parallel()

	instance := NewInstance(&fakeClient{responseText: "done"}, "m", "", "t")
	if _, err := instance.Prompt(context.Background(), "do the thing"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}

	history := instance.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "do the thing" {
		t.Fatalf("history[0] = %#v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "done" {
		t.Fatalf("history[1] = %#v", history[1])
	}
}

func TestInstancePromptErrorLeavesHistoryUntouched(t *testing.T) {
	t.Parallel()

	client := &fakeClient{promptErr: errors.New("backend down")}
	instance := NewInstance(client, "m", "", "t")

	if _, err := instance.Prompt(context.Background(), "hello"); err == nil {
		t.Fatal("expected prompt error")
	}
	if got := len(instance.History()); got != 0 {
		t.Fatalf("history length after failure = %d, want 0", got)
	}
}

func TestStartSessionChecksHealthFirst(t *testing.T) {
	t.Parallel()

	client := &fakeClient{healthErr: errors.New("unreachable")}
	instance := NewInstance(client, "m", "", "t")

	if err := instance.StartSession(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
	if got := instance.SessionID(); got != "" {
		t.Fatalf("session id = %q, want empty after failed health check", got)
	}
}
