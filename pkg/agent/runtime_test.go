package agent

import (
	"context"
	"strings"
	"testing"

	"concierge/pkg/config"
	"concierge/pkg/routing"
)

func testRuntime(client *fakeClient) *Runtime {
	cfg := &config.Config{}
	cfg.Agents.Defaults.Model = "openai/gpt-5.2"
	return NewRuntime(client, cfg, nil)
}

func TestRuntimeReusesInstancePerSession(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	runtime := testRuntime(client)
	decision := routing.RoutingDecision{
		SessionKey: routing.DirectKey("telegram", "100"),
		Trust:      routing.TrustFull,
	}

	if _, err := runtime.Prompt(context.Background(), decision, "one"); err != nil {
		t.Fatalf("first Prompt error: %v", err)
	}
	if _, err := runtime.Prompt(context.Background(), decision, "two"); err != nil {
		t.Fatalf("second Prompt error: %v", err)
	}

	prompts := client.recordedPrompts()
	if len(prompts) != 2 {
		t.Fatalf("prompt count = %d, want 2", len(prompts))
	}
	if prompts[0].sessionID != prompts[1].sessionID {
		t.Fatal("same session key produced different provider sessions")
	}

	if got := len(runtime.Sessions()); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
}

func TestRuntimeSeparatesSessions(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	runtime := testRuntime(client)

	alice := routing.RoutingDecision{SessionKey: routing.DirectKey("telegram", "1"), Trust: routing.TrustInner}
	bob := routing.RoutingDecision{SessionKey: routing.DirectKey("telegram", "2"), Trust: routing.TrustPublic}

	if _, err := runtime.Prompt(context.Background(), alice, "hi"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}
	if _, err := runtime.Prompt(context.Background(), bob, "hi"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}

	prompts := client.recordedPrompts()
	if len(prompts) != 2 {
		t.Fatalf("prompt count = %d, want 2", len(prompts))
	}
	if prompts[0].sessionID == prompts[1].sessionID {
		t.Fatal("distinct session keys shared a provider session")
	}
}

func TestRuntimeBuildsTrustScopedProfiles(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	runtime := testRuntime(client)

	principal := routing.RoutingDecision{
		SessionKey: routing.PrimaryKey(),
		Trust:      routing.TrustFull,
		User:       &routing.User{Name: "Riku", Trust: routing.TrustFull, Primary: true},
	}
	stranger := routing.RoutingDecision{SessionKey: routing.DirectKey("telegram", "999"), Trust: routing.TrustPublic}

	if _, err := runtime.Prompt(context.Background(), principal, "hi"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}
	if _, err := runtime.Prompt(context.Background(), stranger, "hi"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}

	prompts := client.recordedPrompts()
	if !strings.Contains(prompts[0].system, "Riku") {
		t.Fatal("principal profile does not name the user")
	}
	if !strings.Contains(prompts[0].system, "Trust: full") {
		t.Fatalf("principal profile = %q", prompts[0].system)
	}
	if !strings.Contains(prompts[1].system, "Trust: public") {
		t.Fatalf("stranger profile = %q", prompts[1].system)
	}
}

func TestRuntimeHistoryPerSession(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responseText: "noted"}
	runtime := testRuntime(client)
	decision := routing.RoutingDecision{SessionKey: routing.IsolatedKey("job-1"), Trust: routing.TrustFull}

	if _, err := runtime.Prompt(context.Background(), decision, "remember this"); err != nil {
		t.Fatalf("Prompt error: %v", err)
	}

	history := runtime.History(decision.SessionKey)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if got := runtime.History(routing.IsolatedKey("other")); got != nil {
		t.Fatalf("history for unknown session = %#v, want nil", got)
	}
}
