/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "routerbot",
	Short: "Telegram bot that routes messages by intent",
	Long: `Routerbot answers chat messages through a tiered router: intent classification,
pattern bindings, LLM generation and a fixed default reply.

Run "routerbot gateway" to serve Telegram, or "routerbot chat" to talk to the bot locally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
