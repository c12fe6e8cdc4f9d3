package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"concierge/pkg/provider"
	providertypes "concierge/pkg/provider/types"
)

// Instance binds one session to a provider conversation. The provider session
// is created lazily on first prompt so idle sessions cost nothing.
type Instance struct {
	client provider.Client
	model  string
	system string
	title  string
	memory *Memory

	mu        sync.Mutex
	sessionID string
}

func NewInstance(client provider.Client, model string, system string, title string) *Instance {
	return &Instance{
		client: client,
		model:  strings.TrimSpace(model),
		system: system,
		title:  strings.TrimSpace(title),
		memory: NewMemory(),
	}
}

// StartSession eagerly creates the provider conversation. Prompt does this on
// demand; StartSession exists so interactive callers can fail fast.
func (i *Instance) StartSession(ctx context.Context) error {
	if err := i.client.Health(ctx); err != nil {
		return err
	}

	_, err := i.ensureSession(ctx)
	return err
}

// Prompt runs one turn against the provider and records it in local memory.
func (i *Instance) Prompt(ctx context.Context, prompt string) (providertypes.PromptResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return providertypes.PromptResult{}, errors.New("prompt cannot be empty")
	}

	sessionID, err := i.ensureSession(ctx)
	if err != nil {
		return providertypes.PromptResult{}, err
	}

	result, err := i.client.Prompt(ctx, sessionID, prompt, i.model, i.system)
	if err != nil {
		return providertypes.PromptResult{}, err
	}

	i.memory.Append("user", prompt)
	i.memory.Append("assistant", result.Text)

	return result, nil
}

func (i *Instance) ensureSession(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.sessionID != "" {
		return i.sessionID, nil
	}

	sessionID, err := i.client.CreateSession(ctx, i.title)
	if err != nil {
		return "", err
	}

	i.sessionID = sessionID
	return sessionID, nil
}

func (i *Instance) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.sessionID
}

// History returns a copy of the turns recorded for this instance.
func (i *Instance) History() []MemoryEntry {
	return i.memory.List()
}
