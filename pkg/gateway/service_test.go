package gateway

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"concierge/pkg/config"
	"concierge/pkg/cron"
	"concierge/pkg/workspace"
)

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{"telegram": {Running: true}}}
	if svc.isReady() {
		t.Fatal("expected not ready without provider health")
	}

	svc.providerLastOKAt = time.Now().UTC()
	if !svc.isReady() {
		t.Fatal("expected ready with running channel and healthy provider")
	}

	svc.providerLastErr = "boom"
	if svc.isReady() {
		t.Fatal("expected not ready when provider has error")
	}

	svc.providerLastErr = ""
	svc.channelStates["telegram"] = channelState{Running: false, Error: "poll failed"}
	if svc.isReady() {
		t.Fatal("expected not ready when no channel is running")
	}
}

func TestSeedHeartbeatChecklistForFlaggedJobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Agents.Defaults.Workspace = dir

	jobs := cron.LoadJobs([]config.CronJobConfig{
		{Name: "heartbeat", Schedule: "*/30 * * * *", Message: "Read HEARTBEAT.md and act on it.", Channel: "telegram", To: "100"},
	}, nil, slog.Default())
	if len(jobs) != 1 {
		t.Fatalf("loaded %d jobs, want 1", len(jobs))
	}

	if err := seedHeartbeatChecklist(cfg, jobs, slog.Default()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	path := filepath.Join(dir, workspace.HeartbeatChecklistName)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checklist not seeded: %v", err)
	}
}

func TestSeedHeartbeatChecklistSkippedWithoutFlaggedJobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Agents.Defaults.Workspace = dir

	jobs := cron.LoadJobs([]config.CronJobConfig{
		{Name: "digest", Schedule: "0 8 * * *", Message: "Summarize the day ahead.", Channel: "telegram", To: "100"},
	}, nil, slog.Default())

	if err := seedHeartbeatChecklist(cfg, jobs, slog.Default()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	path := filepath.Join(dir, workspace.HeartbeatChecklistName)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("checklist should not exist for plain jobs, stat err = %v", err)
	}
}
