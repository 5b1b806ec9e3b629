package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FerryClaw/FerryClaw/internal/agent"
	"github.com/FerryClaw/FerryClaw/internal/channels"
	"github.com/FerryClaw/FerryClaw/internal/config"
	"github.com/FerryClaw/FerryClaw/internal/delivery"
	"github.com/FerryClaw/FerryClaw/internal/gatekeeper"
	"github.com/FerryClaw/FerryClaw/internal/planner"
	"github.com/FerryClaw/FerryClaw/internal/provider"
	"github.com/FerryClaw/FerryClaw/internal/store"
	"github.com/FerryClaw/FerryClaw/internal/tools"
)

var (
	agentMessage string
	agentSession string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the agent directly in CLI",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent (omit for interactive mode)")
	agentCmd.Flags().StringVarP(&agentSession, "session", "s", "cli:default", "Session ID")
}

func runAgent(cmd *cobra.Command, args []string) error {
	printHeader("🤖 FerryClaw Agent")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.Workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.Paths.DataDir, "ferryclaw.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	prov, err := provider.Resolve(cfg, cfg.Model.Name)
	if err != nil {
		return err
	}
	_, modelName := provider.ParseModelString(cfg.Model.Name)

	var pl *planner.Planner
	if cfg.Orchestrator.Enabled {
		pl = planner.New(prov, modelOrDefault(cfg.Orchestrator.Model, modelName), logger)
	}
	gk := gatekeeper.New(prov, modelOrDefault(cfg.Gatekeeper.Model, modelName), cfg.Gatekeeper.Enabled, logger)

	deliverer := delivery.New(st, cfg.Gateway.BotUsername, logger)
	loc := cfg.Gateway.Location()

	registry := tools.NewRegistry()
	registry.Register(tools.NewExecTool(execTimeout, true, cfg.Paths.Workspace))
	registry.Register(&tools.ReadFileTool{})
	registry.Register(&tools.WriteFileTool{Workspace: cfg.Paths.Workspace})
	registry.Register(&tools.EditFileTool{Workspace: cfg.Paths.Workspace})
	registry.Register(&tools.ListDirTool{})
	registry.Register(tools.NewSendMessageTool(deliverer))
	registry.Register(tools.NewSearchHistoryTool(st))
	registry.Register(tools.NewRegisterTaskTool(st, loc))
	registry.Register(tools.NewListScheduledTasksTool(st))

	ag := agent.New(prov, registry, st, pl, gk, agent.Config{
		Model:             modelName,
		MaxTokens:         cfg.Model.MaxTokens,
		Temperature:       cfg.Model.Temperature,
		MaxToolIterations: cfg.Model.MaxToolIterations,
		BotUsername:       cfg.Gateway.BotUsername,
		ControlChatIDs:    cfg.Gateway.ControlChatIDs,
	}, logger)

	chatID := channels.CanonicalChatID("local", agentSession)
	if err := st.UpsertChat(chatID, agentSession, "local"); err != nil {
		return err
	}

	ctx := cmd.Context()
	if agentMessage != "" {
		return runAgentOnce(ctx, ag, chatID, agentMessage, modelName)
	}
	return runAgentREPL(ctx, ag, chatID, modelName)
}

func runAgentOnce(ctx context.Context, ag *agent.Agent, chatID int64, message, model string) error {
	fmt.Printf("🤖 FerryClaw (%s)\n", model)
	fmt.Println("Thinking...")

	response, err := ag.Run(ctx, &agent.Request{ChatID: chatID, SenderName: "cli-user", Text: message})
	if err != nil {
		return err
	}
	fmt.Println("\n" + response)
	return nil
}

func runAgentREPL(ctx context.Context, ag *agent.Agent, chatID int64, model string) error {
	fmt.Printf("🤖 FerryClaw (%s) interactive session. Type 'exit' to quit.\n", model)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		response, err := ag.Run(ctx, &agent.Request{ChatID: chatID, SenderName: "cli-user", Text: line})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(response)
	}
}
