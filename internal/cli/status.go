package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/FerryClaw/FerryClaw/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ FerryClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 FerryClaw Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:  ? Unable to load:", err)
			return
		}
		switch {
		case cfg.Providers.Anthropic.APIKey != "":
			fmt.Println("API Key: ✓ Found (anthropic)")
		case cfg.Providers.OpenAI.APIKey != "":
			fmt.Println("API Key: ✓ Found (openai)")
		default:
			fmt.Println("API Key: ✗ Not found")
		}

		for name, enabled := range map[string]bool{
			"Telegram": cfg.Channels.Telegram.Enabled,
			"Discord":  cfg.Channels.Discord.Enabled,
			"WhatsApp": cfg.Channels.WhatsApp.Enabled,
			"Web":      cfg.Channels.Web.Enabled,
		} {
			mark := "✗"
			if enabled {
				mark = "✓"
			}
			fmt.Printf("%-9s %s\n", name+":", mark)
		}

		if cfg.Channels.WhatsApp.Enabled {
			waDB := filepath.Join(cfg.Paths.DataDir, "whatsapp.db")
			if _, err := os.Stat(waDB); err == nil {
				fmt.Println("WhatsApp Link: ✓ Session found")
			} else {
				fmt.Println("WhatsApp Link: ✗ No session (QR pairing needed)")
				fmt.Println("WhatsApp QR:   " + filepath.Join(cfg.Paths.DataDir, "whatsapp-qr.png"))
			}
		}

		fmt.Println("Status:  Ready")
	},
}
