package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"concierge/pkg/agent"
	"concierge/pkg/bus"
	"concierge/pkg/channel"
	"concierge/pkg/channel/local"
	"concierge/pkg/config"
	"concierge/pkg/cron"
	"concierge/pkg/provider"
	providertypes "concierge/pkg/provider/types"
	"concierge/pkg/routing"
	"concierge/pkg/turn"

	"github.com/stretchr/testify/require"
)

type recordingGatewayProvider struct {
	mu sync.Mutex

	healthCalls       int
	createSessionNext int
	promptSessionIDs  []string
	promptTexts       []string
	promptErr         error
	emptyResponses    bool
}

func (p *recordingGatewayProvider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthCalls++
	return nil
}

func (p *recordingGatewayProvider) CreateSession(context.Context, string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createSessionNext++
	return fmt.Sprintf("session-%d", p.createSessionNext), nil
}

func (p *recordingGatewayProvider) Prompt(_ context.Context, sessionID string, prompt string, _ string, _ string) (providertypes.PromptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.promptErr != nil {
		return providertypes.PromptResult{}, p.promptErr
	}
	p.promptSessionIDs = append(p.promptSessionIDs, sessionID)
	p.promptTexts = append(p.promptTexts, prompt)
	if p.emptyResponses {
		return providertypes.PromptResult{}, nil
	}
	return providertypes.PromptResult{Text: "ok:" + prompt}, nil
}

func (p *recordingGatewayProvider) snapshot() (int, []string, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessionIDs := make([]string, len(p.promptSessionIDs))
	copy(sessionIDs, p.promptSessionIDs)

	prompts := make([]string, len(p.promptTexts))
	copy(prompts, p.promptTexts)

	return p.healthCalls, sessionIDs, prompts
}

// newE2EService wires a full gateway service around the in-process local
// channel and an injected provider client, mirroring NewService without the
// provider factory.
func newE2EService(t *testing.T, client provider.Client, port int) (*Service, *local.Adapter, *bus.MessageBus) {
	t.Helper()

	cfg := &config.Config{
		Users: []config.UserConfig{
			{Name: "Riku", Channel: "local", SenderID: "100", Trust: "full"},
			{Name: "Maija", Channel: "local", SenderID: "200", Trust: "inner"},
		},
		Gateway: config.GatewayConfig{
			Host: "127.0.0.1",
			Port: port,
		},
	}
	cfg.Agents.Defaults.Provider = "openai"
	cfg.Agents.Defaults.Model = "openai/gpt-5.2"
	cfg.Agents.Defaults.Workspace = t.TempDir()

	log := slog.Default()
	messages := bus.NewMessageBus()

	adapter, err := local.NewAdapter(messages, log)
	require.NoError(t, err)

	registry := channel.NewRegistry()
	registry.Register(adapter.Name(), adapter)

	runtime := agent.NewRuntime(client, cfg, log)
	executor := turn.NewExecutor(runtime, turn.NewPresenceNotifier(registry), log)
	dispatcher := NewDispatcher(routing.NewRouter(cfg.Users, log), executor, registry, messages, log)
	scheduler := cron.NewScheduler(nil, executor, cron.NewRouter(registry, messages, log), messages, log)

	svc := &Service{
		cfg:        cfg,
		log:        log.With("component", "gateway.service.test"),
		provider:   client,
		runtime:    runtime,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		messages:   messages,
		channels:   []channel.Adapter{adapter},
		channelStates: map[string]channelState{
			adapter.Name(): {},
		},
	}

	return svc, adapter, messages
}

func waitReply(t *testing.T, adapter *local.Adapter) local.Reply {
	t.Helper()

	select {
	case reply := <-adapter.Replies():
		return reply
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reply")
		return local.Reply{}
	}
}

func TestGatewayServiceRunE2ESessionContinuity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &recordingGatewayProvider{}
	svc, adapter, messages := newE2EService(t, client, freeTCPPort(t))
	defer messages.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.True(t, adapter.Submit(ctx, "100", "one"))
	reply := waitReply(t, adapter)
	require.Equal(t, "100", reply.Target)
	require.Equal(t, "ok:one", reply.Text)

	require.True(t, adapter.Submit(ctx, "100", "two"))
	reply = waitReply(t, adapter)
	require.Equal(t, "ok:two", reply.Text)

	require.True(t, adapter.Submit(ctx, "200", "three"))
	reply = waitReply(t, adapter)
	require.Equal(t, "200", reply.Target)
	require.Equal(t, "ok:three", reply.Text)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}

	healthCalls, sessionIDs, prompts := client.snapshot()
	require.GreaterOrEqual(t, healthCalls, 1)
	require.Equal(t, []string{"session-1", "session-1", "session-2"}, sessionIDs)
	require.Equal(t, []string{"one", "two", "three"}, prompts)
}

func TestGatewayServiceRunE2EPromptFailurePublishesTurnFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &recordingGatewayProvider{promptErr: fmt.Errorf("prompt exploded")}
	svc, adapter, messages := newE2EService(t, client, freeTCPPort(t))
	defer messages.Close()

	events, unsubscribe := messages.SubscribeEvents(ctx, 16)
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	require.True(t, adapter.Submit(ctx, "100", "trigger error"))

	failed := waitForEvent(t, events, bus.EventTurnFailed)
	require.Contains(t, failed.Error, "prompt exploded")
	require.Equal(t, "local:direct:100", failed.SessionKey)

	select {
	case reply := <-adapter.Replies():
		t.Fatalf("unexpected reply after failed turn: %+v", reply)
	default:
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

type toggledHealthProvider struct {
	mu sync.Mutex

	healthErr error
}

func (p *toggledHealthProvider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthErr
}

func (p *toggledHealthProvider) CreateSession(context.Context, string) (string, error) {
	return "session-ready", nil
}

func (p *toggledHealthProvider) Prompt(context.Context, string, string, string, string) (providertypes.PromptResult, error) {
	return providertypes.PromptResult{Text: "ok"}, nil
}

func (p *toggledHealthProvider) setHealthErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthErr = err
}

func TestGatewayServiceReadyzTransitionsOnProviderHealthRecovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &toggledHealthProvider{}
	port := freeTCPPort(t)
	svc, _, messages := newE2EService(t, client, port)
	defer messages.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second, http.StatusOK))

	client.setHealthErr(fmt.Errorf("temporary provider outage"))
	require.Error(t, svc.checkProviderHealth(context.Background()))
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second, http.StatusServiceUnavailable))

	client.setHealthErr(nil)
	require.NoError(t, svc.checkProviderHealth(context.Background()))
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second, http.StatusOK))

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration, want int) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	last := 0
	for {
		response, err := http.Get(url)
		if err == nil {
			last = response.StatusCode
			require.NoError(t, response.Body.Close())
			if last == want {
				return last
			}
		}

		if time.Now().After(deadline) {
			if err != nil {
				t.Fatalf("timed out waiting for %s: %v", url, err)
			}
			return last
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
