// Package main provides the CLI entry point for agentcore, an embeddable
// agent runtime: a single stream_message loop wired to a Provider, a tool
// registry, a skill registry, and a resumable event log.
//
// # Basic Usage
//
// Start an interactive chat session against Anthropic:
//
//	ANTHROPIC_API_KEY=sk-... agentcore chat
//
// Against OpenAI instead:
//
//	OPENAI_API_KEY=sk-... agentcore chat --provider openai --model gpt-4o
//
// Serve Prometheus metrics alongside the session:
//
//	agentcore chat --metrics-addr :9090
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/agentforge/agentcore/internal/agentcore"
	"github.com/agentforge/agentcore/internal/eventstore"
	"github.com/agentforge/agentcore/internal/metrics"
	"github.com/agentforge/agentcore/internal/provider"
	"github.com/agentforge/agentcore/internal/provider/anthropic"
	"github.com/agentforge/agentcore/internal/provider/openai"
	"github.com/agentforge/agentcore/internal/sandbox"
	"github.com/agentforge/agentcore/internal/sessionstore"
	"github.com/agentforge/agentcore/internal/skills"
	"github.com/agentforge/agentcore/internal/tools"
	"github.com/agentforge/agentcore/pkg/models"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "agentcore",
		Short:   "agentcore - an embeddable AI agent runtime",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `agentcore drives a single-session agent loop: load history, compose a
system prompt from active skills, stream a Provider completion, fan out any
tool calls, and repeat until the turn ends or the iteration cap is hit.`,
		SilenceUsage: true,
	}
	root.AddCommand(buildChatCmd())
	return root
}

// chatFlags collects the chat subcommand's configuration surface.
type chatFlags struct {
	providerName     string
	model            string
	baseURL          string
	workspace        string
	sessionID        string
	systemPrompt     string
	contextWindow    int
	compactThreshold float64
	maxIterations    int
	maxTokens        int
	maxRetries       int
	metricsAddr      string
	noTools          bool
}

func buildChatCmd() *cobra.Command {
	flags := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session against a configured Provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.providerName, "provider", "anthropic", "LLM provider: anthropic or openai")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model name (defaults to the provider's own default)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Override the provider's API base URL")
	cmd.Flags().StringVar(&flags.workspace, "workspace", ".", "Sandbox root for read_file/write_file/exec")
	cmd.Flags().StringVar(&flags.sessionID, "session", "cli", "Session id; reusing one resumes its history")
	cmd.Flags().StringVar(&flags.systemPrompt, "system", "You are a careful, concise engineering assistant.", "Base system prompt")
	cmd.Flags().IntVar(&flags.contextWindow, "context-window", 180_000, "Provider context window in tokens")
	cmd.Flags().Float64Var(&flags.compactThreshold, "compact-threshold", 0.8, "Usage fraction that triggers compaction")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", agentcore.DefaultMaxIterations, "Tool-call iterations before forcing a synthetic done")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", agentcore.DefaultMaxTokens, "Max output tokens per completion")
	cmd.Flags().IntVar(&flags.maxRetries, "max-retries", 3, "Retries for retryable Provider errors")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&flags.noTools, "no-tools", false, "Disable the built-in read_file/write_file/exec/create_subagent tools")
	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, flags *chatFlags) error {
	prov, err := buildProvider(flags)
	if err != nil {
		return err
	}

	toolRegistry := tools.New(tools.DefaultOptions())
	sb := sandbox.New(flags.workspace)
	if !flags.noTools {
		if err := agentcore.RegisterSandboxTools(toolRegistry, sb); err != nil {
			return fmt.Errorf("register sandbox tools: %w", err)
		}
	}

	mtx := metrics.New()
	cfg := agentcore.Config{
		Provider: provider.Config{
			Model:      flags.model,
			BaseURL:    flags.baseURL,
			MaxRetries: flags.maxRetries,
			// InitialDelay is the first backoff step; the retry policy
			// doubles it on each subsequent attempt.
			InitialDelay: 500 * time.Millisecond,
		},
		SystemPrompt:     flags.systemPrompt,
		MaxIterations:    flags.maxIterations,
		CompactThreshold: flags.compactThreshold,
		ContextWindow:    flags.contextWindow,
		MaxTokens:        flags.maxTokens,
	}

	agent := agentcore.New(prov, toolRegistry, skills.New(), sessionstore.NewMemoryBackend(), cfg)
	agent.Events = eventstore.NewMemoryStore(eventstore.DefaultTTL)
	agent.Sandbox = sb
	agent.Metrics = mtx
	if !flags.noTools {
		if err := agentcore.RegisterSubagentTool(agent); err != nil {
			return fmt.Errorf("register create_subagent: %w", err)
		}
	}

	if flags.metricsAddr != "" {
		stop := serveMetrics(flags.metricsAddr)
		defer stop()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "agentcore chat — provider=%s model=%s session=%s (Ctrl-D to exit)\n", prov.Name(), flags.model, flags.sessionID)

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := streamTurn(sigCtx, out, agent, flags.sessionID, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func streamTurn(ctx context.Context, out io.Writer, agent *agentcore.Agent, sessionID, text string) error {
	events, errc := agent.StreamMessage(ctx, sessionID, agentcore.Input{Text: text}, "")
	for ev := range events {
		switch ev.Kind {
		case models.EventToken:
			var d models.TokenData
			_ = json.Unmarshal(ev.Data, &d)
			fmt.Fprint(out, d.Delta)
		case models.EventToolCall:
			var d models.ToolCallData
			_ = json.Unmarshal(ev.Data, &d)
			fmt.Fprintf(out, "\n[tool %s: %s]\n", d.Status, d.Summary)
		case models.EventCompact:
			var d models.CompactData
			_ = json.Unmarshal(ev.Data, &d)
			fmt.Fprintf(out, "\n[compaction: %s %d -> %d tokens]\n", d.Phase, d.BeforeTokens, d.AfterTokens)
		case models.EventRetry:
			var d models.RetryData
			_ = json.Unmarshal(ev.Data, &d)
			fmt.Fprintf(out, "\n[retry %d/%d: %s]\n", d.Attempt, d.MaxRetries, d.ErrorKind)
		case models.EventDone:
			fmt.Fprintln(out)
		case models.EventError:
			var d models.ErrorData
			_ = json.Unmarshal(ev.Data, &d)
			fmt.Fprintf(out, "\n[error: %s: %s]\n", d.Type, d.Message)
		}
	}
	return <-errc
}

func buildProvider(flags *chatFlags) (provider.Provider, error) {
	switch strings.ToLower(flags.providerName) {
	case "", "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for --provider anthropic")
		}
		return anthropic.New(anthropic.Config{APIKey: key, BaseURL: flags.baseURL, Model: flags.model})
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for --provider openai")
		}
		return openai.New(openai.Config{APIKey: key, BaseURL: flags.baseURL, Model: flags.model})
	default:
		return nil, fmt.Errorf("unknown provider %q: expected anthropic or openai", flags.providerName)
	}
}

// serveMetrics starts a background HTTP server exposing /metrics and
// returns a function that shuts it down.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
