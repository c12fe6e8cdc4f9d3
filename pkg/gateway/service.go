package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"concierge/pkg/agent"
	"concierge/pkg/bus"
	"concierge/pkg/channel"
	"concierge/pkg/config"
	"concierge/pkg/cron"
	"concierge/pkg/provider"
	"concierge/pkg/routing"
	"concierge/pkg/turn"
	"concierge/pkg/workspace"
)

const (
	defaultHealthHost   = "0.0.0.0"
	defaultHealthPort   = 18790
	defaultDrainTimeout = 30 * time.Second
)

// Service is the long-running gateway process: channel adapters feeding the
// bus, the dispatch loop spawning turns, the cron scheduler firing jobs, and
// a small HTTP status surface.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	provider   provider.Client
	runtime    *agent.Runtime
	dispatcher *Dispatcher
	scheduler  *cron.Scheduler
	messages   *bus.MessageBus
	channels   []channel.Adapter

	mu               sync.RWMutex
	startedAt        time.Time
	providerLastOKAt time.Time
	providerLastErr  string
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status           string                  `json:"status"`
	UptimeSeconds    int64                   `json:"uptime_seconds"`
	ActiveSessions   []string                `json:"active_sessions,omitempty"`
	ProviderLastOKAt string                  `json:"provider_last_ok_at,omitempty"`
	ProviderLastErr  string                  `json:"provider_last_error,omitempty"`
	Channels         map[string]channelState `json:"channels"`
}

func NewService(cfg *config.Config, messages *bus.MessageBus, registry *channel.Registry, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if messages == nil {
		return nil, errors.New("message bus is required")
	}
	if registry == nil {
		return nil, errors.New("channel registry is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := provider.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize provider: %w", err)
	}

	runtime := agent.NewRuntime(client, cfg, log)
	executor := turn.NewExecutor(runtime, turn.NewPresenceNotifier(registry), log)
	dispatcher := NewDispatcher(routing.NewRouter(cfg.Users, log), executor, registry, messages, log)

	jobs := cron.LoadJobs(cfg.Cron.Jobs, cfg.Users, log)
	scheduler := cron.NewScheduler(jobs, executor, cron.NewRouter(registry, messages, log), messages, log)

	if err := seedHeartbeatChecklist(cfg, jobs, log); err != nil {
		return nil, err
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		provider:      client,
		runtime:       runtime,
		dispatcher:    dispatcher,
		scheduler:     scheduler,
		messages:      messages,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// seedHeartbeatChecklist bootstraps the workspace checklist when any job
// expects one, so a fresh install's heartbeat jobs have something to read.
func seedHeartbeatChecklist(cfg *config.Config, jobs []*cron.Job, log *slog.Logger) error {
	needed := false
	for _, job := range jobs {
		if job.SilentUnlessNoteworthy() {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	path, err := workspace.EnsureHeartbeatChecklist(cfg.Agents.Defaults.Workspace)
	if err != nil {
		return fmt.Errorf("seed heartbeat checklist: %w", err)
	}

	log.Info("Heartbeat checklist ready", "path", path)
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.checkProviderHealth(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErrors := make(chan error, 1)
	go s.runHealthServer(runCtx, serverErrors)
	go ObserveEvents(runCtx, s.messages, s.log)
	go s.dispatcher.Run(runCtx)

	schedulerErrors := make(chan error, 1)
	go func() {
		schedulerErrors <- s.scheduler.Run(runCtx)
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				_ = s.checkProviderHealth(runCtx)
			}
		}
	}()

	channelErrors := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(runCtx)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				channelErrors <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return s.shutdown(cancel)
	case err := <-serverErrors:
		s.shutdownNow(cancel)
		return err
	case err := <-schedulerErrors:
		if err != nil {
			s.shutdownNow(cancel)
			return fmt.Errorf("run cron scheduler: %w", err)
		}
		<-ctx.Done()
		return s.shutdown(cancel)
	case err := <-channelErrors:
		s.shutdownNow(cancel)
		return err
	}
}

// shutdown stops spawning new turns, then gives in-flight turns a bounded
// window to finish before the process exits.
func (s *Service) shutdown(cancel context.CancelFunc) error {
	timeout := time.Duration(s.cfg.Gateway.DrainTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}

	cancel()
	s.log.Info("Draining in-flight turns", "timeout", timeout.String())
	if err := s.dispatcher.Drain(timeout); err != nil {
		s.log.Warn("Shutdown drain incomplete", "error", err)
	}
	s.runtime.Close()

	return nil
}

func (s *Service) shutdownNow(cancel context.CancelFunc) {
	cancel()
	s.runtime.Close()
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	active := s.dispatcher.ActiveSessions()
	activeNames := make([]string, 0, len(active))
	for _, key := range active {
		activeNames = append(activeNames, key.String())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	providerLastOK := ""
	if !s.providerLastOKAt.IsZero() {
		providerLastOK = s.providerLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:           status,
		UptimeSeconds:    uptime,
		ActiveSessions:   activeNames,
		ProviderLastOKAt: providerLastOK,
		ProviderLastErr:  s.providerLastErr,
		Channels:         channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.channelStates) == 0 {
		return false
	}

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}

	if !anyRunning {
		return false
	}

	if s.providerLastOKAt.IsZero() {
		return false
	}

	return s.providerLastErr == ""
}

func (s *Service) checkProviderHealth(ctx context.Context) error {
	if err := s.provider.Health(ctx); err != nil {
		s.mu.Lock()
		s.providerLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("provider health check failed: %w", err)
	}

	s.mu.Lock()
	s.providerLastErr = ""
	s.providerLastOKAt = time.Now().UTC()
	s.mu.Unlock()

	return nil
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
