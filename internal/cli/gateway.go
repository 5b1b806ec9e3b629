package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/FerryClaw/FerryClaw/internal/agent"
	"github.com/FerryClaw/FerryClaw/internal/audit"
	"github.com/FerryClaw/FerryClaw/internal/bus"
	"github.com/FerryClaw/FerryClaw/internal/channels"
	"github.com/FerryClaw/FerryClaw/internal/config"
	"github.com/FerryClaw/FerryClaw/internal/delivery"
	"github.com/FerryClaw/FerryClaw/internal/gatekeeper"
	"github.com/FerryClaw/FerryClaw/internal/planner"
	"github.com/FerryClaw/FerryClaw/internal/provider"
	"github.com/FerryClaw/FerryClaw/internal/runhub"
	"github.com/FerryClaw/FerryClaw/internal/scheduler"
	"github.com/FerryClaw/FerryClaw/internal/store"
	"github.com/FerryClaw/FerryClaw/internal/tools"
	"github.com/FerryClaw/FerryClaw/internal/web"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway: channels, web surface, scheduler and agent",
	RunE:  runGateway,
}

const execTimeout = 60 * time.Second

// runtime holds everything the gateway wires together.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	bus       *bus.MessageBus
	agent     *agent.Agent
	deliverer *delivery.Deliverer
	auditor   *audit.Publisher
	scheduler *scheduler.Scheduler
	channels  []channels.Channel
	allowFrom map[string][]string
}

func runGateway(cmd *cobra.Command, args []string) error {
	printHeader("🌐 FerryClaw Gateway")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.store.Close()
	defer rt.auditor.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.bus.DispatchOutbound(ctx)
	go rt.consumeInbound(ctx)

	for _, ch := range rt.channels {
		if err := ch.Start(ctx); err != nil {
			logger.Error("channel start failed", "channel", ch.Name(), "error", err)
			continue
		}
		rt.registerSender(ch)
	}
	defer func() {
		for _, ch := range rt.channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "error", err)
			}
		}
	}()

	if cfg.Scheduler.Enabled {
		go rt.scheduler.Run(ctx)
	}

	if cfg.Channels.Web.Enabled {
		srv := rt.webServer()
		addr := fmt.Sprintf("%s:%d", cfg.Channels.Web.Host, cfg.Channels.Web.Port)
		httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
		go func() {
			logger.Info("web surface listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("web server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("gateway running", "version", version)
	<-ctx.Done()
	logger.Info("gateway shutting down")
	return nil
}

func buildRuntime(cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.Workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.Paths.DataDir, "ferryclaw.db"))
	if err != nil {
		return nil, err
	}

	prov, err := provider.Resolve(cfg, cfg.Model.Name)
	if err != nil {
		st.Close()
		return nil, err
	}

	var auditor *audit.Publisher
	if cfg.Audit.Enabled && len(cfg.Audit.Brokers) > 0 {
		auditor = audit.New(cfg.Audit.Brokers, cfg.Audit.Topic, logger)
	}

	_, modelName := provider.ParseModelString(cfg.Model.Name)

	var pl *planner.Planner
	if cfg.Orchestrator.Enabled {
		pl = planner.New(prov, modelOrDefault(cfg.Orchestrator.Model, modelName), logger)
	}

	gkOpts := []gatekeeper.Option{}
	if auditor != nil {
		gkOpts = append(gkOpts, gatekeeper.WithRecorder(auditor))
	}
	gk := gatekeeper.New(prov, modelOrDefault(cfg.Gatekeeper.Model, modelName), cfg.Gatekeeper.Enabled, logger, gkOpts...)

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

	runTask := func(ctx context.Context, chatID int64, prompt string) (string, error) {
		return ag.Run(ctx, &agent.Request{ChatID: chatID, SenderName: "scheduler", Text: prompt, Headless: true})
	}
	schedOpts := []scheduler.Option{}
	if auditor != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(auditor))
	}
	sched := scheduler.New(scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		Location:     loc,
	}, st, deliverer, runTask, logger, schedOpts...)

	msgBus := bus.NewMessageBus()

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		bus:       msgBus,
		agent:     ag,
		deliverer: deliverer,
		auditor:   auditor,
		scheduler: sched,
		allowFrom: map[string][]string{
			"telegram": cfg.Channels.Telegram.AllowFrom,
			"discord":  cfg.Channels.Discord.AllowFrom,
			"whatsapp": cfg.Channels.WhatsApp.AllowFrom,
		},
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		rt.channels = append(rt.channels, channels.NewTelegramChannel(cfg.Channels.Telegram.Token, msgBus, logger))
	}
	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		rt.channels = append(rt.channels, channels.NewDiscordChannel(cfg.Channels.Discord.Token, msgBus, logger))
	}
	if cfg.Channels.WhatsApp.Enabled {
		rt.channels = append(rt.channels, channels.NewWhatsAppChannel(cfg.Paths.DataDir, msgBus, logger))
	}
	// Slack is outbound-only: scheduled replies and fan-out can reach
	// Slack bindings without a listener.
	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken != "" {
		deliverer.Register("slack", delivery.NewSlackSender(slack.New(cfg.Channels.Slack.BotToken)))
	}

	return rt, nil
}

// registerSender wires a started channel's client into the delivery
// fan-out path.
func (rt *runtime) registerSender(ch channels.Channel) {
	switch c := ch.(type) {
	case *channels.TelegramChannel:
		if c.Bot() != nil {
			rt.deliverer.Register("telegram", delivery.NewTelegramSender(c.Bot()))
		}
	case *channels.DiscordChannel:
		if c.Session() != nil {
			rt.deliverer.Register("discord", delivery.NewDiscordSender(c.Session()))
		}
	case *channels.WhatsAppChannel:
		if c.Client() != nil {
			rt.deliverer.Register("whatsapp", delivery.NewWhatsAppSender(c.Client()))
		}
	}
}

// consumeInbound is the gateway's core loop: resolve the canonical chat,
// record the binding, run the agent and deliver the reply.
func (rt *runtime) consumeInbound(ctx context.Context) {
	for {
		msg, err := rt.bus.ConsumeInbound(ctx)
		if err != nil {
			return
		}
		go rt.handleInbound(ctx, msg)
	}
}

func (rt *runtime) handleInbound(ctx context.Context, msg *bus.InboundMessage) {
	if !channels.SenderAllowed(rt.allowFrom[msg.Channel], msg.SenderHandle) {
		rt.logger.Debug("dropping message from disallowed sender", "channel", msg.Channel, "sender", msg.SenderHandle)
		return
	}
	chatID := channels.CanonicalChatID(msg.Channel, msg.ChatHandle)
	title := msg.ChatTitle
	if title == "" {
		title = msg.ChatHandle
	}
	if err := rt.store.UpsertChat(chatID, title, msg.Channel); err != nil {
		rt.logger.Error("upsert chat failed", "chat_id", chatID, "error", err)
		return
	}
	if err := rt.store.UpsertChannelBinding(&store.ChannelBinding{
		CanonicalChatID: chatID,
		ChannelType:     msg.Channel,
		ChannelHandle:   msg.ChatHandle,
	}); err != nil {
		rt.logger.Error("upsert binding failed", "chat_id", chatID, "error", err)
	}

	response, err := rt.agent.Run(ctx, &agent.Request{
		ChatID:     chatID,
		SenderName: msg.SenderName,
		Text:       msg.Content,
	})
	if err != nil {
		rt.logger.Error("agent run failed", "chat_id", chatID, "error", err)
		rt.bus.PublishOutbound(&bus.OutboundMessage{
			Channel:    msg.Channel,
			ChatHandle: msg.ChatHandle,
			Content:    fmt.Sprintf("Sorry, something went wrong: %v", err),
		})
		return
	}
	if response == "" {
		return
	}
	if err := rt.deliverer.DeliverToContact(ctx, chatID, response); err != nil {
		rt.logger.Error("delivery failed", "chat_id", chatID, "error", err)
	}
}

func (rt *runtime) webServer() *web.Server {
	run := func(ctx context.Context, req *agent.Request) (string, error) {
		return rt.agent.Run(ctx, req)
	}
	persist := func(ctx context.Context, chatID int64, text string) error {
		return rt.deliverer.SendAndStore(ctx, chatID, text)
	}
	return web.New(rt.store, runhub.NewHub(), run, persist, rt.cfg.Channels.Web.AuthToken, rt.logger)
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
