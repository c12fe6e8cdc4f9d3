/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"concierge/pkg/config"
	"concierge/pkg/gateway"
	"concierge/pkg/provider"
	"concierge/pkg/ui/chat"

	"github.com/spf13/cobra"
)

var chatPromptText string

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Open the retro chat TUI",
	Long:  "Opens the full-screen terminal chat against an in-process session, or renders a single prompt and exits.",
	Run: func(cmd *cobra.Command, args []string) {
		prompt := promptFrom(chatPromptText, args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		client, err := provider.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize provider: %v\n", err)
			return
		}

		ctx := context.Background()
		if err := client.Health(ctx); err != nil {
			fmt.Printf("provider health check failed: %v\n", err)
			return
		}

		session, err := gateway.StartLocalSession(ctx, cfg, client, slog.Default())
		if err != nil {
			fmt.Printf("failed to start session: %v\n", err)
			return
		}
		defer session.Close()

		info := chat.RuntimeInfo{
			Provider: cfg.Agents.Defaults.Provider,
			Model:    cfg.Agents.Defaults.Model,
		}

		if prompt != "" {
			if err := chat.RunOneShot(ctx, session.Prompt, prompt, info); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
			return
		}

		if err := chat.RunInteractive(ctx, session.Prompt, info); err != nil {
			fmt.Printf("chat failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatPromptText, "prompt", "p", "", "prompt text to send")
}
