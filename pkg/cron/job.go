package cron

import (
	"log/slog"
	"strings"

	cronparse "github.com/robfig/cron/v3"

	"concierge/pkg/config"
	"concierge/pkg/routing"
)

// heartbeatChecklist is the workspace resource monitoring jobs are told to
// read. A job whose message references it is treated as silent unless it has
// something to report.
const heartbeatChecklist = "HEARTBEAT.md"

// SentinelNothingToReport is the exact reply a silent-unless-noteworthy job
// returns to mean "all quiet". It suppresses delivery only for flagged jobs.
const SentinelNothingToReport = "HEARTBEAT_OK"

// DeliveryTarget names where a job's response goes: a registered channel and
// an opaque target address on it.
type DeliveryTarget struct {
	Channel string
	To      string
}

// Job is one validated scheduled turn. Jobs are immutable after load; the
// scheduler tracks last-fired times separately.
type Job struct {
	Name     string
	Expr     string
	Schedule cronparse.Schedule
	Message  string
	Trust    routing.TrustLevel
	Deliver  *DeliveryTarget
}

// SilentUnlessNoteworthy reports whether the job's response should be
// suppressed when it equals the sentinel. The flag derives from the job's
// message referencing the heartbeat checklist.
func (j *Job) SilentUnlessNoteworthy() bool {
	return strings.Contains(j.Message, heartbeatChecklist)
}

// SessionKey returns the session all of this job's turns serialize on.
func (j *Job) SessionKey() routing.SessionKey {
	return routing.CronKey(j.Name)
}

// LoadJobs validates configured jobs. A job with an invalid schedule, a
// missing name, or a duplicate name is disabled with an error log; the rest
// load normally.
func LoadJobs(configs []config.CronJobConfig, users []config.UserConfig, log *slog.Logger) []*Job {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "cron.loader")

	trustByName := make(map[string]routing.TrustLevel, len(users))
	for _, u := range users {
		trust, err := routing.ParseTrust(u.Trust)
		if err != nil {
			continue
		}
		trustByName[strings.TrimSpace(u.Name)] = trust
	}

	seen := make(map[string]struct{}, len(configs))
	jobs := make([]*Job, 0, len(configs))
	for _, jc := range configs {
		name := strings.TrimSpace(jc.Name)
		if name == "" {
			log.Error("Disabling cron job without a name", "schedule", jc.Schedule)
			continue
		}
		if _, dup := seen[name]; dup {
			log.Error("Disabling cron job with duplicate name", "name", name)
			continue
		}

		schedule, err := cronparse.ParseStandard(strings.TrimSpace(jc.Schedule))
		if err != nil {
			log.Error("Disabling cron job with invalid schedule", "name", name, "schedule", jc.Schedule, "error", err)
			continue
		}

		job := &Job{
			Name:     name,
			Expr:     strings.TrimSpace(jc.Schedule),
			Schedule: schedule,
			Message:  strings.TrimSpace(jc.Message),
			Trust:    routing.TrustFull,
		}

		if actingUser := strings.TrimSpace(jc.ActingUser); actingUser != "" {
			if trust, ok := trustByName[actingUser]; ok {
				job.Trust = trust
			} else {
				log.Warn("Cron job acting user is not configured, keeping full trust", "name", name, "acting_user", actingUser)
			}
		}

		if channelName := strings.TrimSpace(jc.Channel); channelName != "" {
			job.Deliver = &DeliveryTarget{Channel: channelName, To: strings.TrimSpace(jc.To)}
		}

		seen[name] = struct{}{}
		jobs = append(jobs, job)
	}

	return jobs
}
