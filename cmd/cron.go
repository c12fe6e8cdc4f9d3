/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"concierge/pkg/config"
	"concierge/pkg/cron"

	"github.com/spf13/cobra"
)

// cronCmd represents the cron command
var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect scheduled jobs",
}

var cronListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jobs with their next fire times",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		jobs := cron.LoadJobs(cfg.Cron.Jobs, cfg.Users, slog.Default())
		if len(jobs) == 0 {
			fmt.Println("no cron jobs configured")
			return
		}

		for _, line := range jobSummaryLines(jobs, time.Now()) {
			fmt.Println(line)
		}
	},
}

var cronValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configured jobs",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		jobs := cron.LoadJobs(cfg.Cron.Jobs, cfg.Users, slog.Default())
		fmt.Println(validationSummary(len(cfg.Cron.Jobs), len(jobs)))
	},
}

func init() {
	rootCmd.AddCommand(cronCmd)
	cronCmd.AddCommand(cronListCmd)
	cronCmd.AddCommand(cronValidateCmd)
}

func jobSummaryLines(jobs []*cron.Job, now time.Time) []string {
	lines := make([]string, 0, len(jobs))
	for _, job := range jobs {
		target := "no delivery target"
		if job.Deliver != nil {
			target = fmt.Sprintf("delivers to %s:%s", job.Deliver.Channel, job.Deliver.To)
		}

		suffix := ""
		if job.SilentUnlessNoteworthy() {
			suffix = " (silent unless noteworthy)"
		}

		lines = append(lines, fmt.Sprintf(
			"%s  [%s]  next %s  %s%s",
			job.Name,
			job.Expr,
			job.Schedule.Next(now).Format(time.RFC3339),
			target,
			suffix,
		))
	}

	return lines
}

func validationSummary(configured int, loaded int) string {
	if configured == 0 {
		return "no cron jobs configured"
	}
	if loaded == configured {
		return fmt.Sprintf("all %d cron jobs valid", configured)
	}

	return fmt.Sprintf("%d of %d cron jobs valid, %d disabled (see logs)", loaded, configured, configured-loaded)
}
