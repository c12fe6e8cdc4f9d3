package channel

import (
	"context"
	"testing"
)

type stubSender struct{ sent []string }

func (s *stubSender) Send(_ context.Context, target string, text string) error {
	s.sent = append(s.sent, target+":"+text)
	return nil
}

type stubPresenceSender struct {
	stubSender
	typing []bool
}

func (s *stubPresenceSender) SetTyping(_ context.Context, _ string, active bool) {
	s.typing = append(s.typing, active)
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	sender := &stubSender{}
	registry.Register("telegram", sender)

	got, ok := registry.Sender("telegram")
	if !ok || got != sender {
		t.Fatalf("Sender(telegram) = %v, %v", got, ok)
	}

	if _, ok := registry.Sender("discord"); ok {
		t.Fatal("unknown channel resolved a sender")
	}
}

func TestRegistryPresenceDetection(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("telegram", &stubPresenceSender{})
	registry.Register("webhook", &stubSender{})

	if _, ok := registry.Presence("telegram"); !ok {
		t.Fatal("presence-capable sender not detected")
	}
	if _, ok := registry.Presence("webhook"); ok {
		t.Fatal("plain sender reported presence support")
	}
	if _, ok := registry.Presence("missing"); ok {
		t.Fatal("unknown channel reported presence support")
	}
}

func TestRegistryIgnoresEmptyRegistrations(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register("", &stubSender{})
	registry.Register("x", nil)

	if len(registry.Names()) != 0 {
		t.Fatalf("names = %v, want empty", registry.Names())
	}
}
