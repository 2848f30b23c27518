package policy_test

import (
	"testing"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
)

func TestEvaluateCommandDeniesPrefixMatch(t *testing.T) {
	e := policy.New(policy.Config{
		DangerousCommandPatterns: []string{`rm\s+-rf\s+/`},
	})

	d := e.Evaluate("agent-1", policy.ActionCommand, "rm -rf /tmp/workspace/old_files")
	if d.Allowed {
		t.Fatal("expected deny: command matches dangerous pattern as a prefix of the full command")
	}
	if len(d.MatchedPatterns) != 1 {
		t.Fatalf("expected 1 matched pattern, got %d", len(d.MatchedPatterns))
	}
}

func TestEvaluateCommandAllowsSafe(t *testing.T) {
	e := policy.New(policy.Config{
		DangerousCommandPatterns: []string{`rm\s+-rf\s+/\s*$`},
	})
	d := e.Evaluate("agent-1", policy.ActionCommand, "echo hello")
	if !d.Allowed {
		t.Fatalf("expected allow, got deny: %s", d.Reason)
	}
}

func TestEvaluateFileReadBlocksExactAndDirectory(t *testing.T) {
	e := policy.New(policy.Config{
		BlockedReadPaths: []string{"/etc/shadow", "/root/.ssh/"},
		Home:             "/home/agent",
	})

	if d := e.Evaluate("a", policy.ActionFileRead, "/etc/shadow"); d.Allowed {
		t.Fatal("expected deny for exact blocked file")
	}
	if d := e.Evaluate("a", policy.ActionFileRead, "/root/.ssh/id_rsa"); d.Allowed {
		t.Fatal("expected deny for blocked directory prefix")
	}
	if d := e.Evaluate("a", policy.ActionFileRead, "/tmp/notes.txt"); !d.Allowed {
		t.Fatal("expected allow for unrelated path")
	}
}

func TestEvaluateFileReadExpandsHome(t *testing.T) {
	e := policy.New(policy.Config{
		BlockedReadPaths: []string{"/home/agent/.env"},
		Home:             "/home/agent",
	})
	d := e.Evaluate("a", policy.ActionFileRead, "~/.env")
	if d.Allowed {
		t.Fatal("expected deny after tilde expansion")
	}
}

func TestEvaluateFileWrite(t *testing.T) {
	e := policy.New(policy.Config{
		BlockedWritePaths: []string{"/etc"},
	})
	if d := e.Evaluate("a", policy.ActionFileWrite, "/etc/passwd"); d.Allowed {
		t.Fatal("expected deny for write under blocked prefix")
	}
	if d := e.Evaluate("a", policy.ActionFileWrite, "/tmp/out.txt"); !d.Allowed {
		t.Fatal("expected allow for unrelated write target")
	}
}

func TestEvaluateHTTPRequestAllowlist(t *testing.T) {
	e := policy.New(policy.Config{
		AllowedDomains: []string{"api.anthropic.com", "api.openai.com"},
	})

	d := e.Evaluate("a", policy.ActionHTTPRequest, "https://evil.com/exfil")
	if d.Allowed {
		t.Fatal("expected deny for non-allowed domain")
	}

	d = e.Evaluate("a", policy.ActionHTTPRequest, "https://api.anthropic.com/v1/messages")
	if !d.Allowed {
		t.Fatalf("expected allow for allowed domain, got reason: %s", d.Reason)
	}
}

func TestEvaluateHTTPRequestEmptyAllowlistAllowsAll(t *testing.T) {
	e := policy.New(policy.Config{})
	d := e.Evaluate("a", policy.ActionHTTPRequest, "https://anything.example/foo")
	if !d.Allowed {
		t.Fatal("expected allow when allow-list is empty")
	}
}

func TestEvaluateHTTPRequestInvalidURL(t *testing.T) {
	e := policy.New(policy.Config{AllowedDomains: []string{"example.com"}})
	d := e.Evaluate("a", policy.ActionHTTPRequest, "::not a url::")
	if d.Allowed {
		t.Fatal("expected deny for unparseable URL")
	}
	if d.Reason != "Invalid URL" {
		t.Fatalf("expected reason %q, got %q", "Invalid URL", d.Reason)
	}
}

func TestEvaluateHTTPRequestSuffixMatch(t *testing.T) {
	e := policy.New(policy.Config{AllowedDomains: []string{"example.com"}})
	d := e.Evaluate("a", policy.ActionHTTPRequest, "https://api.example.com/v1")
	if !d.Allowed {
		t.Fatal("expected allow for subdomain suffix match")
	}
	d = e.Evaluate("a", policy.ActionHTTPRequest, "https://notexample.com/v1")
	if d.Allowed {
		t.Fatal("expected deny: notexample.com is not a label-boundary suffix of example.com")
	}
}

func TestEvaluateSSHExec(t *testing.T) {
	e := policy.New(policy.Config{AllowedSSHHosts: []string{"deploy.internal"}})
	if d := e.Evaluate("a", policy.ActionSSHExec, "root@deploy.internal:22"); !d.Allowed {
		t.Fatal("expected allow for allowed ssh host")
	}
	if d := e.Evaluate("a", policy.ActionSSHExec, "root@evil.example:22"); d.Allowed {
		t.Fatal("expected deny for disallowed ssh host")
	}
}

func TestEvaluateGitOnlyAppliesToRemoteTargets(t *testing.T) {
	e := policy.New(policy.Config{AllowedRepoSubstrings: []string{"github.com:myorg"}})

	// Local path target: allow-list should not apply.
	if d := e.Evaluate("a", policy.ActionGit, "status /home/agent/repo"); !d.Allowed {
		t.Fatal("expected allow for local (non-remote) git target")
	}

	if d := e.Evaluate("a", policy.ActionGit, "clone git@github.com:myorg/repo.git"); !d.Allowed {
		t.Fatal("expected allow for whitelisted remote")
	}
	if d := e.Evaluate("a", policy.ActionGit, "clone git@github.com:otherorg/repo.git"); d.Allowed {
		t.Fatal("expected deny for non-whitelisted remote")
	}
}

func TestEvaluateVaultAndScheduleAlwaysAllow(t *testing.T) {
	e := policy.New(policy.Config{})
	if d := e.Evaluate("a", policy.ActionVault, "anything"); !d.Allowed {
		t.Fatal("vault actions should always be allowed at the policy layer")
	}
	if d := e.Evaluate("a", policy.ActionSchedule, "anything"); !d.Allowed {
		t.Fatal("schedule actions should always be allowed at the policy layer")
	}
}

func TestEvaluateUnknownActionDefaultsAllow(t *testing.T) {
	e := policy.New(policy.Config{})
	d := e.Evaluate("a", policy.ActionType("made_up"), "x")
	if !d.Allowed {
		t.Fatal("unknown action types should default to allow")
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := policy.New(policy.Config{
		DangerousCommandPatterns: []string{"rm -rf"},
		BlockedReadPaths:         []string{"/etc/shadow"},
	})
	for i := 0; i < 5; i++ {
		d1 := e.Evaluate("a", policy.ActionCommand, "rm -rf /")
		d2 := e.Evaluate("a", policy.ActionCommand, "rm -rf /")
		if d1.Allowed != d2.Allowed || d1.Reason != d2.Reason {
			t.Fatalf("evaluate is not deterministic across calls")
		}
	}
}

func TestInvalidPatternsAreSilentlyDropped(t *testing.T) {
	e := policy.New(policy.Config{
		DangerousCommandPatterns: []string{"(unterminated["},
	})
	d := e.Evaluate("a", policy.ActionCommand, "(unterminated[ foo")
	if !d.Allowed {
		t.Fatal("invalid regex should be dropped, not matched")
	}
}

func TestRequestRateLimit(t *testing.T) {
	e := policy.New(policy.Config{RequestsPerMinute: 2})
	if d := e.Evaluate("agent-x", policy.ActionVault, "x"); !d.Allowed {
		t.Fatal("first call should be allowed")
	}
	if d := e.Evaluate("agent-x", policy.ActionVault, "x"); !d.Allowed {
		t.Fatal("second call should be allowed")
	}
	if d := e.Evaluate("agent-x", policy.ActionVault, "x"); d.Allowed {
		t.Fatal("third call within the window should be rate limited")
	}
}
