// Tamalebot-core is the security-mediated agent runtime binary.
//
// All configuration is loaded from environment variables. The process
// wires together a policy engine, an append-only audit journal, a
// credential vault, an LLM provider, the fixed tool registry, the bounded
// agent loop, and a chat-facing HTTP surface, then serves until signaled
// to stop.
//
// Required environment variables:
//
//	AGENT_ID              - unique agent identifier (e.g. "ops-bot")
//	LLM_API_KEY           - API key for the configured LLM provider
//
// Optional environment variables:
//
//	HTTP_ADDR             - HTTP listen address (default ":8765")
//	STORAGE_BACKEND       - "mem", "fs", or "sqlite" (default "sqlite")
//	STORAGE_PATH          - directory (fs) or file path (sqlite) for storage
//	AUDIT_DIR             - directory for per-agent audit logs (default "/data/audit")
//	VAULT_SOURCE_SECRET   - passphrase the credential vault derives its key from
//	LLM_DIALECT           - "auto", "native_blocks" (native tool-use blocks), or "function_call" (function-call style)
//	LLM_BASE_URL          - override the provider's API base URL
//	LLM_MODEL             - model name (default "claude-3-5-sonnet-20241022")
//	LLM_TIMEOUT           - per-request provider timeout as a Go duration (default 120s)
//	AGENT_SYSTEM_PROMPT   - system prompt prepended to every turn
//	POLICY_FILE           - path to a YAML policy file; overrides the POLICY_* vars below
//	POLICY_BLOCKED_READ_PATHS   - comma-separated path prefixes blocked from file_read
//	POLICY_BLOCKED_WRITE_PATHS  - comma-separated path prefixes blocked from file_write
//	POLICY_DANGEROUS_COMMAND_PATTERNS - comma-separated regexes blocked from shell
//	POLICY_ALLOWED_DOMAINS      - comma-separated domains allowed for web_browse
//	POLICY_ALLOWED_SSH_HOSTS    - comma-separated hosts allowed for ssh_exec
//	POLICY_ALLOWED_REPO_SUBSTRINGS - comma-separated substrings allowed for git
//	POLICY_REQUESTS_PER_MINUTE  - per-agent rate limit (default unlimited)
//	LOG_LEVEL             - "debug", "info", "warn", "error" (default "info")
//
// The think/act bound per turn is the agent loop's fixed default of 20
// iterations; no environment variable sets it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tamalebot/tamalebot-core/common/environment"
	"github.com/tamalebot/tamalebot-core/common/version"
	"github.com/tamalebot/tamalebot-core/internal/core/agent"
	"github.com/tamalebot/tamalebot-core/internal/core/audit"
	"github.com/tamalebot/tamalebot-core/internal/core/conversation"
	"github.com/tamalebot/tamalebot-core/internal/core/httpapi"
	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/provider"
	"github.com/tamalebot/tamalebot-core/internal/core/schedule"
	"github.com/tamalebot/tamalebot-core/internal/core/storage"
	"github.com/tamalebot/tamalebot-core/internal/core/tools"
	"github.com/tamalebot/tamalebot-core/internal/core/vault"
)

func main() {
	setupLogging(environment.StringOr("LOG_LEVEL", "info"))

	agentID, err := environment.RequiredString("AGENT_ID")
	if err != nil {
		fatal(err)
	}
	apiKey, err := environment.RequiredString("LLM_API_KEY")
	if err != nil {
		fatal(err)
	}

	journal, err := audit.New(environment.StringOr("AUDIT_DIR", "/data/audit"))
	if err != nil {
		slog.Error("failed to open audit journal", "err", err)
		os.Exit(1)
	}
	defer journal.Close()

	policyCfg := policy.Config{
		Name:                     agentID,
		BlockedReadPaths:         environment.StringSliceOr("POLICY_BLOCKED_READ_PATHS", nil),
		BlockedWritePaths:        environment.StringSliceOr("POLICY_BLOCKED_WRITE_PATHS", nil),
		DangerousCommandPatterns: environment.StringSliceOr("POLICY_DANGEROUS_COMMAND_PATTERNS", nil),
		AllowedDomains:           environment.StringSliceOr("POLICY_ALLOWED_DOMAINS", nil),
		AllowedSSHHosts:          environment.StringSliceOr("POLICY_ALLOWED_SSH_HOSTS", nil),
		AllowedRepoSubstrings:    environment.StringSliceOr("POLICY_ALLOWED_REPO_SUBSTRINGS", nil),
		RequestsPerMinute:        environment.IntOr("POLICY_REQUESTS_PER_MINUTE", 0),
	}
	if policyFile, ok := environment.String("POLICY_FILE"); ok && policyFile != "" {
		fileCfg, err := policy.LoadConfigFile(policyFile)
		if err != nil {
			slog.Error("failed to load policy file", "err", err)
			os.Exit(1)
		}
		policyCfg = fileCfg
	}
	engine := policy.New(policyCfg)

	backend, err := newStorageBackend()
	if err != nil {
		slog.Error("failed to open storage backend", "err", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry(engine, journal)
	registry.Register(&tools.ShellTool{AgentID: agentID})
	registry.Register(&tools.FileReadTool{})
	registry.Register(&tools.FileWriteTool{})
	registry.Register(&tools.WebBrowseTool{})
	registry.Register(&tools.ScheduleTool{Store: schedule.NewStore(backend)})

	if source := environment.StringOr("VAULT_SOURCE_SECRET", ""); source != "" {
		v, err := vault.New(agentID, source, backend, journal)
		if err != nil {
			slog.Error("failed to initialize credential vault", "err", err)
			os.Exit(1)
		}
		registry.Register(&tools.VaultTool{Vault: v})
		registry.Register(&tools.SSHExecTool{Vault: v})
		registry.Register(&tools.GitTool{Vault: v})
	} else {
		slog.Warn("VAULT_SOURCE_SECRET not set, vault/ssh_exec/git tools unavailable")
		registry.Register(&tools.VaultTool{})
		registry.Register(&tools.SSHExecTool{})
		registry.Register(&tools.GitTool{})
	}

	llmProvider := newProvider(apiKey)
	loop := agent.New(llmProvider, registry)

	server := httpapi.New(environment.StringOr("HTTP_ADDR", ":8765"), httpapi.Handlers{
		AgentID:      agentID,
		Loop:         loop,
		Conversation: conversation.NewStore(),
		Journal:      journal,
		Model:        environment.StringOr("LLM_MODEL", "claude-3-5-sonnet-20241022"),
		SystemPrompt: environment.StringOr("AGENT_SYSTEM_PROMPT", ""),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start http server", "err", err)
		os.Exit(1)
	}

	slog.Info("tamalebot-core started", "agent_id", agentID, "version", version.Info())
	<-ctx.Done()
	slog.Info("shutting down")
	server.Stop()
}

func newProvider(apiKey string) provider.Provider {
	model := environment.StringOr("LLM_MODEL", "claude-3-5-sonnet-20241022")
	dialect := provider.Dialect(environment.StringOr("LLM_DIALECT", "auto"))
	if dialect == "auto" {
		dialect = provider.DetectDialect(model)
	}

	timeout := environment.DurationOr("LLM_TIMEOUT", 120*time.Second)
	baseURL := environment.StringOr("LLM_BASE_URL", "")

	switch dialect {
	case provider.DialectB:
		return provider.NewDialectB(provider.DialectBConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   model,
			Timeout: timeout,
		})
	default:
		return provider.NewDialectA(provider.DialectAConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   model,
			Timeout: timeout,
		})
	}
}

func newStorageBackend() (storage.Backend, error) {
	switch environment.StringOr("STORAGE_BACKEND", "sqlite") {
	case "mem":
		return storage.NewMemStore(), nil
	case "fs":
		return storage.NewFSStore(environment.StringOr("STORAGE_PATH", "/data/store"))
	default:
		return storage.NewSQLiteStore(environment.StringOr("STORAGE_PATH", "/data/tamalebot-core.db"))
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	os.Exit(1)
}
