package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tamalebot/tamalebot-core/internal/core/policy"
	"github.com/tamalebot/tamalebot-core/internal/core/vault"
)

const (
	sshExecDefaultTimeout = 30 * time.Second
	sshExecMaxTimeout     = 120 * time.Second
	sshExecCaptureCap     = 1 << 20
	sshExecResultCap      = 10000
	sshExecDefaultUser    = "root"
	sshExecDefaultPort    = 22
	sshExecDefaultKey     = "SSH_KEY"
)

// SSHExecTool runs a single command on a remote host over SSH, using a
// private key materialized from the vault for the duration of the call.
type SSHExecTool struct {
	Vault *vault.Vault
}

func (t *SSHExecTool) Name() string { return "ssh_exec" }
func (t *SSHExecTool) Description() string {
	return "Run a command on a remote host over SSH, using a key stored in the vault."
}

func (t *SSHExecTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"host":       map[string]interface{}{"type": "string", "description": "remote host"},
			"command":    map[string]interface{}{"type": "string", "description": "command to run remotely"},
			"user":       map[string]interface{}{"type": "string", "description": "remote user, default root"},
			"port":       map[string]interface{}{"type": "integer", "description": "SSH port, default 22"},
			"key_name":   map[string]interface{}{"type": "string", "description": "vault credential name of the private key, default SSH_KEY"},
			"timeout_ms": map[string]interface{}{"type": "integer", "description": "timeout in milliseconds, default 30000, hard-capped at 120000"},
		},
		"required": []string{"host", "command"},
	}
}

func (t *SSHExecTool) ActionType(args map[string]interface{}) policy.ActionType {
	return policy.ActionSSHExec
}
func (t *SSHExecTool) Target(args map[string]interface{}) string {
	host := stringArgOr(args, "host", "")
	user := stringArgOr(args, "user", sshExecDefaultUser)
	port := intArgOr(args, "port", sshExecDefaultPort)
	return fmt.Sprintf("%s@%s:%d", user, host, port)
}

func (t *SSHExecTool) Run(ctx context.Context, args map[string]interface{}) (string, bool) {
	if t.Vault == nil {
		return "vault is not configured for this agent", true
	}

	host, ok := stringArg(args, "host")
	if !ok || host == "" {
		return "missing required argument: host", true
	}
	command, ok := stringArg(args, "command")
	if !ok || command == "" {
		return "missing required argument: command", true
	}
	user := stringArgOr(args, "user", sshExecDefaultUser)
	port := intArgOr(args, "port", sshExecDefaultPort)
	keyName := stringArgOr(args, "key_name", sshExecDefaultKey)

	timeout := time.Duration(intArgOr(args, "timeout_ms", int(sshExecDefaultTimeout/time.Millisecond))) * time.Millisecond
	if timeout <= 0 || timeout > sshExecMaxTimeout {
		timeout = sshExecMaxTimeout
	}

	cred, err := t.Vault.Get(keyName)
	if err != nil {
		return fmt.Sprintf("failed to load ssh key %s: %v", keyName, err), true
	}
	if cred == nil {
		return fmt.Sprintf("ssh key %s not found in vault", keyName), true
	}

	privKey, err := base64.StdEncoding.DecodeString(cred.Value)
	if err != nil {
		return fmt.Sprintf("ssh key %s is not valid base64: %v", keyName, err), true
	}

	signer, err := ssh.ParsePrivateKey(privKey)
	if err != nil {
		return fmt.Sprintf("ssh key %s could not be parsed: %v", keyName, err), true
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(runCtx, "tcp", addr)
	if err != nil {
		return fmt.Sprintf("failed to connect to %s: %v", addr, err), true
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return fmt.Sprintf("ssh handshake with %s failed: %v", addr, err), true
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Sprintf("failed to open ssh session on %s: %v", addr, err), true
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = capped(&stdout, sshExecCaptureCap)
	session.Stderr = capped(&stderr, sshExecCaptureCap)

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-runCtx.Done():
		session.Close()
		runErr = runCtx.Err()
	}

	combined := stdout.String()
	if stderr.Len() > 0 {
		if combined != "" {
			combined += "\n--- stderr ---\n"
		}
		combined += stderr.String()
	}
	if len(combined) > sshExecResultCap {
		combined = combined[:sshExecResultCap]
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("ssh command timed out after %s\n%s", timeout, combined), true
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return fmt.Sprintf("ssh command exited with code %d\n%s", exitErr.ExitStatus(), combined), true
		}
		return fmt.Sprintf("ssh command failed: %v\n%s", runErr, combined), true
	}

	return combined, false
}
