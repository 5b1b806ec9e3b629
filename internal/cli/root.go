// Package cli implements the ferryclaw command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/FerryClaw/FerryClaw/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  _____                     ____ _\n" +
		" |  ___|__ _ __ _ __ _   _ / ___| | __ ___      __\n" +
		" | |_ / _ \\ '__| '__| | | | |   | |/ _` \\ \\ /\\ / /\n" +
		" |  _|  __/ |  | |  | |_| | |___| | (_| |\\ V  V /\n" +
		" |_|  \\___|_|  |_|   \\__, |\\____|_|\\__,_| \\_/\\_/\n" +
		"                     |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "ferryclaw",
	Short: "FerryClaw - Conversational Agent Gateway",
	Long:  color.CyanString(logo) + "\nA multi-channel conversational agent gateway written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(taskCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
