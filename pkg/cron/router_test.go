package cron

import (
	"context"
	"errors"
	"sync"
	"testing"

	"concierge/pkg/channel"
)

type recordingSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (s *recordingSender) Send(_ context.Context, target string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, target+"|"+text)
	return nil
}

func (s *recordingSender) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func deliveryFixture() (*Router, *recordingSender) {
	registry := channel.NewRegistry()
	sender := &recordingSender{}
	registry.Register("telegram", sender)
	return NewRouter(registry, nil, nil), sender
}

func TestDeliverSendsResponseToTarget(t *testing.T) {
	t.Parallel()

	router, sender := deliveryFixture()
	job := &Job{Name: "brief", Message: "summarize", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}

	router.Deliver(context.Background(), job, "  Today looks calm.  ")

	sent := sender.sentMessages()
	if len(sent) != 1 || sent[0] != "100|Today looks calm." {
		t.Fatalf("sent = %v, want trimmed response to target 100", sent)
	}
}

func TestDeliverNoTargetIsNoop(t *testing.T) {
	t.Parallel()

	router, sender := deliveryFixture()
	job := &Job{Name: "internal", Message: "bookkeeping"}

	router.Deliver(context.Background(), job, "anything")

	if len(sender.sentMessages()) != 0 {
		t.Fatal("job without target delivered")
	}
}

func TestDeliverEmptyResponseIsSkippedNotSuppressed(t *testing.T) {
	t.Parallel()

	router, sender := deliveryFixture()
	// Flagged job: even here, an empty response is a skip, not an
	// affirmative "nothing to report".
	job := &Job{Name: "monitor", Message: "Read HEARTBEAT.md", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}

	router.Deliver(context.Background(), job, "   ")

	if len(sender.sentMessages()) != 0 {
		t.Fatal("empty response was delivered")
	}
}

func TestDeliverSentinelSuppressedOnlyForFlaggedJobs(t *testing.T) {
	t.Parallel()

	router, sender := deliveryFixture()

	flagged := &Job{Name: "monitor", Message: "Read HEARTBEAT.md and report.", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}
	router.Deliver(context.Background(), flagged, SentinelNothingToReport)
	if len(sender.sentMessages()) != 0 {
		t.Fatal("sentinel from flagged job was delivered")
	}

	cheerful := &Job{Name: "checkin", Message: "Send a cheerful check-in.", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}
	router.Deliver(context.Background(), cheerful, SentinelNothingToReport)
	sent := sender.sentMessages()
	if len(sent) != 1 || sent[0] != "100|"+SentinelNothingToReport {
		t.Fatalf("sent = %v, want sentinel delivered verbatim for unflagged job", sent)
	}
}

func TestDeliverFlaggedJobWithRealNewsDelivers(t *testing.T) {
	t.Parallel()

	router, sender := deliveryFixture()
	job := &Job{Name: "monitor", Message: "Read HEARTBEAT.md and report.", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}

	router.Deliver(context.Background(), job, "Disk usage is at 96%.")

	sent := sender.sentMessages()
	if len(sent) != 1 || sent[0] != "100|Disk usage is at 96%." {
		t.Fatalf("sent = %v, want noteworthy response delivered", sent)
	}
}

func TestDeliverUnknownChannelIsNonFatal(t *testing.T) {
	t.Parallel()

	router, _ := deliveryFixture()
	job := &Job{Name: "brief", Deliver: &DeliveryTarget{Channel: "discord", To: "x"}}

	// Must log and return, not panic or error out.
	router.Deliver(context.Background(), job, "hello")
}

func TestDeliverSendFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	registry := channel.NewRegistry()
	sender := &recordingSender{err: errors.New("network down")}
	registry.Register("telegram", sender)
	router := NewRouter(registry, nil, nil)

	job := &Job{Name: "brief", Deliver: &DeliveryTarget{Channel: "telegram", To: "100"}}
	router.Deliver(context.Background(), job, "hello")

	if len(sender.sentMessages()) != 0 {
		t.Fatal("failed send recorded a delivery")
	}
}
