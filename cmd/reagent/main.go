// Command reagent runs the task-execution agent: one-shot from the command
// line, or as an HTTP service streaming step events.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/dmcode/reagent/agent"
	"github.com/dmcode/reagent/config"
	"github.com/dmcode/reagent/llm"
	"github.com/dmcode/reagent/mcp"
	"github.com/dmcode/reagent/memory"
	"github.com/dmcode/reagent/planner"
	"github.com/dmcode/reagent/service"
	"github.com/dmcode/reagent/skills"
	"github.com/dmcode/reagent/tools"
)

var cli struct {
	Config  string `help:"Path to a config file (overrides the default lookup)." type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	Run     RunCmd     `cmd:"" help:"Run one task and print the result."`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API."`
	Skills  SkillsCmd  `cmd:"" help:"List the skill catalog."`
	Servers ServersCmd `cmd:"" help:"List configured tool providers."`
}

func main() {
	godotenv.Load()

	ktx := kong.Parse(&cli,
		kong.Name("reagent"),
		kong.Description("An autonomous task-execution agent."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := loadConfig()
	ktx.FatalIfErrorf(err)
	ktx.FatalIfErrorf(ktx.Run(&cfg))
}

func loadConfig() (config.Config, error) {
	if cli.Config != "" {
		return config.LoadFile(cli.Config)
	}
	return config.Load()
}

// deps is everything a task run needs, built once per command.
type deps struct {
	cfg      config.Config
	client   llm.Client
	registry *tools.Registry
	skillMgr *skills.Manager
	mcpMgr   *mcp.Manager
}

func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	var clientOpts []llm.GollmOption
	if key := apiKeyFor(cfg.LLM.Provider); key != "" {
		clientOpts = append(clientOpts, llm.WithAPIKey(key))
	}
	if cfg.LLM.MaxTokens > 0 {
		clientOpts = append(clientOpts, llm.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	client, err := llm.NewGollmClient(cfg.LLM.Provider, cfg.LLM.Model, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	access := tools.Access{
		Hidden:   cfg.Tools.Filesystem.Hidden,
		ReadOnly: cfg.Tools.Filesystem.ReadOnly,
	}
	registry := tools.DefaultRegistry(access, cfg.Tools.AllowedCommands)

	var selOpts []skills.SelectorOption
	if cfg.Skills.MinScore > 0 {
		selOpts = append(selOpts, skills.WithMinScore(cfg.Skills.MinScore))
	}
	if cfg.Skills.MaxActive > 0 {
		selOpts = append(selOpts, skills.WithMaxActive(cfg.Skills.MaxActive))
	}
	if cfg.Skills.LLMFallback {
		selOpts = append(selOpts, skills.WithLLMFallback(client))
	}
	skillMgr := skills.NewManager(skills.NewSelector(selOpts...))
	skills.RegisterBuiltins(skillMgr)
	if cfg.Skills.Dir != "" {
		if loaded, err := skillMgr.LoadDir(cfg.Skills.Dir); err != nil {
			slog.Warn("skill catalog not loaded", "dir", cfg.Skills.Dir, "error", err)
		} else {
			slog.Info("skill catalog loaded", "dir", cfg.Skills.Dir, "count", len(loaded))
		}
	}

	serverConfigs, err := mcp.LoadConfig(cfg.MCP.ConfigPath)
	if err != nil {
		return nil, err
	}
	mcpMgr := mcp.NewManager(serverConfigs)
	mcpMgr.StartAll(ctx)
	mcpMgr.RegisterTools(registry)

	return &deps{
		cfg:      cfg,
		client:   client,
		registry: registry,
		skillMgr: skillMgr,
		mcpMgr:   mcpMgr,
	}, nil
}

func (d *deps) close() {
	d.mcpMgr.StopAll()
}

// newAgent assembles a fresh agent for one task.
func (d *deps) newAgent(extra ...agent.Option) *agent.ReactAgent {
	opts := []agent.Option{
		agent.WithMaxSteps(d.cfg.Agent.MaxSteps),
		agent.WithTemperature(d.cfg.LLM.Temperature),
		agent.WithSkillManager(d.skillMgr),
	}
	if d.cfg.Agent.Planning {
		opts = append(opts, agent.WithPlanner(planner.New(d.client, d.registry.List())))
	}
	if d.cfg.Agent.Compression {
		var memOpts []memory.Option
		if d.cfg.Agent.CompressEvery > 0 {
			memOpts = append(memOpts, memory.WithCompressEvery(d.cfg.Agent.CompressEvery))
		}
		if d.cfg.Agent.KeepRecent > 0 {
			memOpts = append(memOpts, memory.WithKeepRecent(d.cfg.Agent.KeepRecent))
		}
		if counter, err := memory.NewTokenCounter(d.cfg.LLM.Model); err == nil {
			memOpts = append(memOpts, memory.WithTokenCounter(counter))
		}
		opts = append(opts, agent.WithCompressor(memory.NewCompressor(memOpts...)))
	}
	opts = append(opts, extra...)
	return agent.New(d.client, d.registry, opts...)
}

func apiKeyFor(provider string) string {
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

// RunCmd executes one task and prints each step as it happens.
type RunCmd struct {
	Task string `arg:"" help:"The task to execute."`
}

func (c *RunCmd) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, *cfg)
	if err != nil {
		return err
	}
	defer d.close()

	a := d.newAgent(agent.WithStepCallback(func(n int, step agent.Step) {
		fmt.Printf("[%d] %s\n", n, step.Action)
		if step.Thought != "" {
			fmt.Printf("    thought: %s\n", step.Thought)
		}
		fmt.Printf("    %s\n", firstLine(step.Observation))
	}))

	result, err := a.Run(ctx, c.Task)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n", result.FinalAnswer)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// ServeCmd runs the HTTP front-end.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides config)."`
}

func (c *ServeCmd) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, *cfg)
	if err != nil {
		return err
	}
	defer d.close()

	if cfg.Skills.Watch && cfg.Skills.Dir != "" {
		watcher, err := skills.NewWatcher(d.skillMgr, cfg.Skills.Dir)
		if err != nil {
			slog.Warn("skill watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	registry := service.NewRegistry()
	factory := func(stepCallback agent.Option) *agent.ReactAgent {
		return d.newAgent(stepCallback)
	}
	srv := service.NewServer(registry, factory, d.skillMgr, d.mcpMgr)

	addr := cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// SkillsCmd prints the skill catalog.
type SkillsCmd struct{}

func (c *SkillsCmd) Run(cfg *config.Config) error {
	skillMgr := skills.NewManager(skills.NewSelector())
	skills.RegisterBuiltins(skillMgr)
	if cfg.Skills.Dir != "" {
		if _, err := skillMgr.LoadDir(cfg.Skills.Dir); err != nil {
			slog.Warn("skill catalog not loaded", "dir", cfg.Skills.Dir, "error", err)
		}
	}

	for _, s := range skillMgr.List() {
		meta := s.Metadata()
		fmt.Printf("%-24s %s (priority %d, %d tools)\n",
			meta.Name, meta.Description, meta.Priority, len(s.Tools()))
	}
	return nil
}

// ServersCmd prints the configured tool providers.
type ServersCmd struct{}

func (c *ServersCmd) Run(cfg *config.Config) error {
	configs, err := mcp.LoadConfig(cfg.MCP.ConfigPath)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println("no tool providers configured")
		return nil
	}
	for _, sc := range configs {
		state := "disabled"
		if sc.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-16s %s %s %s\n", sc.Name, state, sc.Command, strings.Join(sc.Args, " "))
	}
	return nil
}
