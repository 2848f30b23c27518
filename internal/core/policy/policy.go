// Package policy implements the stateless decision function every mediated
// action passes through before execution: evaluate(actionType, target) ->
// {allowed, reason, matchedPatterns}. Decisions are deterministic for a
// given Config and input; the engine holds no mutable state beyond the
// compiled pattern cache built once at construction and (optionally) a
// per-agent request-rate counter.
package policy

import (
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ActionType enumerates the kinds of mediated action the engine evaluates.
type ActionType string

const (
	ActionFileRead    ActionType = "file_read"
	ActionFileWrite   ActionType = "file_write"
	ActionCommand     ActionType = "command"
	ActionHTTPRequest ActionType = "http_request"
	ActionSSHExec     ActionType = "ssh_exec"
	ActionGit         ActionType = "git"
	ActionVault       ActionType = "vault"
	ActionSchedule    ActionType = "schedule"
)

// Decision is the outcome of evaluating one proposed action.
type Decision struct {
	Allowed         bool
	Reason          string
	MatchedPatterns []string
}

// Config is a named policy configuration. Empty allow-lists mean "no
// restriction"; empty block-lists mean "no block".
type Config struct {
	Name string

	BlockedReadPaths  []string
	BlockedWritePaths []string

	// DangerousCommandPatterns are regular expressions matched
	// case-insensitively against the whole command string.
	DangerousCommandPatterns []string

	// AllowedDomains, when non-empty, restricts http_request targets.
	AllowedDomains []string
	// AllowedSSHHosts, when non-empty, restricts ssh_exec targets.
	AllowedSSHHosts []string
	// AllowedRepoSubstrings, when non-empty, restricts git targets whose
	// repo argument looks remote.
	AllowedRepoSubstrings []string

	// RequestsPerMinute, when non-zero, caps the number of evaluate() calls
	// accepted per agent per fixed one-minute window. Zero means unlimited. The rate
	// limit is checked before any other rule, so a rate-limited call is
	// denied regardless of the action type or target.
	RequestsPerMinute int

	// Home overrides the process-wide home directory used to expand
	// "~"-prefixed paths. Defaults to os.UserHomeDir() when empty.
	Home string
}

// Engine is a stateless-by-contract evaluator constructed once with a Config.
type Engine struct {
	cfg Config
	home string

	compiledPatterns []compiledPattern

	rl *rateLimiter
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// New compiles cfg's dangerous command patterns (invalid patterns are
// silently dropped) and returns a ready Engine.
func New(cfg Config) *Engine {
	home := cfg.Home
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}

	e := &Engine{cfg: cfg, home: home}
	for _, p := range cfg.DangerousCommandPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		e.compiledPatterns = append(e.compiledPatterns, compiledPattern{source: p, re: re})
	}
	if cfg.RequestsPerMinute > 0 {
		e.rl = newRateLimiter()
	}
	return e
}

// Config returns the configuration this engine was constructed with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate makes an allow/deny decision for the given action and target.
// Unknown action types default to allow.
func (e *Engine) Evaluate(agentID string, actionType ActionType, target string) Decision {
	if e.rl != nil && !e.rl.allow(agentID, e.cfg.RequestsPerMinute) {
		return Decision{Allowed: false, Reason: "rate limit exceeded"}
	}

	switch actionType {
	case ActionFileRead:
		return e.evaluateFileRead(target)
	case ActionFileWrite:
		return e.evaluateFileWrite(target)
	case ActionCommand:
		return e.evaluateCommand(target)
	case ActionHTTPRequest:
		return e.evaluateHTTPRequest(target)
	case ActionSSHExec:
		return e.evaluateSSHExec(target)
	case ActionGit:
		return e.evaluateGit(target)
	case ActionVault, ActionSchedule:
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: true}
	}
}

// expandHome resolves a leading "~" against e.home.
func (e *Engine) expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	if path == "~" {
		return e.home
	}
	if strings.HasPrefix(path, "~/") {
		return e.home + path[1:]
	}
	return path
}

func (e *Engine) evaluateFileRead(target string) Decision {
	expanded := e.expandHome(target)
	for _, blocked := range e.cfg.BlockedReadPaths {
		if strings.HasSuffix(blocked, "/") {
			if strings.HasPrefix(expanded, blocked) {
				return Decision{Allowed: false, Reason: "read access to sensitive directory " + blocked + " is blocked"}
			}
			continue
		}
		if expanded == blocked {
			return Decision{Allowed: false, Reason: "read access to sensitive file " + blocked + " is blocked"}
		}
	}
	return Decision{Allowed: true}
}

func (e *Engine) evaluateFileWrite(target string) Decision {
	expanded := e.expandHome(target)
	for _, blocked := range e.cfg.BlockedWritePaths {
		if strings.HasPrefix(expanded, blocked) {
			return Decision{Allowed: false, Reason: "write access to " + blocked + " is blocked"}
		}
	}
	return Decision{Allowed: true}
}

func (e *Engine) evaluateCommand(target string) Decision {
	var matched []string
	for _, p := range e.compiledPatterns {
		if p.re.MatchString(target) {
			matched = append(matched, p.source)
		}
	}
	if len(matched) == 0 {
		return Decision{Allowed: true}
	}

	reasonPatterns := matched
	if len(reasonPatterns) > 2 {
		reasonPatterns = reasonPatterns[:2]
	}
	return Decision{
		Allowed:         false,
		Reason:          "command matches dangerous pattern(s): " + strings.Join(reasonPatterns, ", "),
		MatchedPatterns: matched,
	}
}

func (e *Engine) evaluateHTTPRequest(target string) Decision {
	if len(e.cfg.AllowedDomains) == 0 {
		return Decision{Allowed: true}
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return Decision{Allowed: false, Reason: "Invalid URL"}
	}
	host := u.Hostname()
	if matchesHostAllowlist(host, e.cfg.AllowedDomains) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reason: "host " + host + " is not in the allowed domains list"}
}

func (e *Engine) evaluateSSHExec(target string) Decision {
	if len(e.cfg.AllowedSSHHosts) == 0 {
		return Decision{Allowed: true}
	}
	host := extractSSHHost(target)
	if matchesHostAllowlist(host, e.cfg.AllowedSSHHosts) {
		return Decision{Allowed: true}
	}
	return Decision{Allowed: false, Reason: "host " + host + " is not in the allowed SSH hosts list"}
}

func (e *Engine) evaluateGit(target string) Decision {
	if len(e.cfg.AllowedRepoSubstrings) == 0 {
		return Decision{Allowed: true}
	}
	parts := strings.Fields(target)
	if len(parts) < 2 {
		return Decision{Allowed: true}
	}
	repo := parts[1]
	if !looksRemote(repo) {
		return Decision{Allowed: true}
	}
	for _, substr := range e.cfg.AllowedRepoSubstrings {
		if strings.Contains(repo, substr) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: "repository " + repo + " is not in the allowed repositories list"}
}

func looksRemote(repo string) bool {
	return strings.Contains(repo, "://") || strings.Contains(repo, "@") || strings.Contains(repo, "github.com")
}

// extractSSHHost extracts the host component from a "user@host:port" target.
func extractSSHHost(target string) string {
	s := target
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

// matchesHostAllowlist reports whether host equals some entry exactly, or
// ends with "." + entry (suffix match at a label boundary).
func matchesHostAllowlist(host string, allowed []string) bool {
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// rateLimiter is a fixed-window per-agent limiter, grounded on the same
// shape as the messaging rate limiter this codebase uses elsewhere.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{windows: make(map[string]*window)}
}

func (r *rateLimiter) allow(agentID string, maxPerMinute int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	w, ok := r.windows[agentID]
	if !ok || now.Sub(w.start) >= time.Minute {
		w = &window{start: now}
		r.windows[agentID] = w
	}
	if w.count >= maxPerMinute {
		return false
	}
	w.count++
	return true
}
