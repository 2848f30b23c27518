// Package vault implements the encrypted credential store every agent
// carries: secrets live at rest as AES-256-GCM ciphertext under a storage
// backend, keyed off a PBKDF2-derived, per-agent key so a vault blob for one
// agent cannot be read by another even from the same source secret.
package vault

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/ssh"

	"github.com/tamalebot/tamalebot-core/internal/core/audit"
	"github.com/tamalebot/tamalebot-core/internal/core/crypto"
	"github.com/tamalebot/tamalebot-core/internal/core/storage"
)

const (
	keyIterations = 100000
	keyLength     = 32

	minValueLen = 1
	maxValueLen = 16384

	prefix = "vault/"
)

// Known credential types. Any string is accepted as a type; these are the
// ones the built-in tools assign.
const (
	TypeAPIKey       = "api_key"
	TypeSSHKey       = "ssh_key"
	TypeSSHPublicKey = "ssh_public_key"
	TypeDeployKey    = "deploy_key"
	TypeGeneric      = "generic"
)

var namePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

// Meta is the non-secret metadata stored alongside a credential.
type Meta struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Credential is a decrypted credential returned by Get.
type Credential struct {
	Name  string
	Value string
	Meta  Meta
}

// record is the on-disk wire format for one credential: vault/{NAME}.json.
// Encrypted holds the base64-encoded output of crypto.Encrypt: a 12-byte
// nonce followed by the AES-256-GCM sealed ciphertext.
type record struct {
	Encrypted string `json:"encrypted"`
	Meta      Meta   `json:"meta"`
}

// Vault is a per-agent encrypted credential store over a storage.Backend.
type Vault struct {
	agentID string
	backend storage.Backend
	journal *audit.Journal
	key     []byte
}

// New derives the vault's encryption key from source (typically an
// environment secret) salted with the agent identity, and returns a Vault
// ready for use.
func New(agentID, source string, backend storage.Backend, journal *audit.Journal) (*Vault, error) {
	if agentID == "" {
		return nil, fmt.Errorf("vault: agentID must not be empty")
	}
	salt := []byte("tamalebot-vault-" + agentID)
	key := pbkdf2.Key([]byte(source), salt, keyIterations, keyLength, sha256.New)
	return &Vault{agentID: agentID, backend: backend, journal: journal, key: key}, nil
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("vault: invalid credential name %q: must match %s", name, namePattern.String())
	}
	return nil
}

func pathFor(name string) string {
	return prefix + name + ".json"
}

// seal encrypts plaintext under the vault's key, returning the
// base64-encoded nonce+ciphertext blob for the on-disk wire format.
func (v *Vault) seal(plaintext []byte) (encrypted string, err error) {
	sealed, err := crypto.Encrypt(v.key, plaintext)
	if err != nil {
		return "", fmt.Errorf("vault: encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a record's encrypted blob back to plaintext.
func (v *Vault) open(r record) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(r.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("vault: decode encrypted body: %w", err)
	}
	plaintext, err := crypto.Decrypt(v.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: authentication failed: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) audit(actionType, target string, decision audit.Decision, reason string) {
	if v.journal == nil {
		return
	}
	v.journal.Log(v.agentID, actionType, target, decision, reason, nil)
}

// Set encrypts value and stores it under name, along with meta.
func (v *Vault) Set(name, value string, meta Meta) error {
	if err := validateName(name); err != nil {
		return err
	}
	if len(value) < minValueLen || len(value) > maxValueLen {
		return fmt.Errorf("vault: value length %d out of bounds [%d, %d]", len(value), minValueLen, maxValueLen)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	encrypted, err := v.seal([]byte(value))
	if err != nil {
		return err
	}

	r := record{Encrypted: encrypted, Meta: meta}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("vault: marshal record: %w", err)
	}

	if err := v.backend.Put(context.Background(), pathFor(name), data); err != nil {
		return fmt.Errorf("vault: store credential %q: %w", name, err)
	}

	v.audit("vault_set", name, audit.DecisionAllowed, "")
	return nil
}

// Get decrypts and returns the credential stored under name. A missing or
// undecryptable entry yields (nil, nil), matching the "returns null" contract
// of the library API; storage errors are returned as err.
func (v *Vault) Get(name string) (*Credential, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, err := v.backend.Get(context.Background(), pathFor(name))
	if err != nil {
		if err == storage.ErrNotFound {
			v.audit("vault_get", name, audit.DecisionBlocked, "not found")
			return nil, nil
		}
		return nil, fmt.Errorf("vault: read credential %q: %w", name, err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		v.audit("vault_get", name, audit.DecisionBlocked, "decryption failed")
		return nil, nil
	}

	plaintext, err := v.open(r)
	if err != nil {
		v.audit("vault_get", name, audit.DecisionBlocked, "decryption failed")
		return nil, nil
	}

	v.audit("vault_get", name, audit.DecisionAllowed, "")
	return &Credential{Name: name, Value: string(plaintext), Meta: r.Meta}, nil
}

// GetMasked returns a tool-mediated view of the credential: the first four
// characters of the value followed by between four and twenty mask
// characters. The plaintext value never appears in the return value.
func (v *Vault) GetMasked(name string) (string, *Meta, error) {
	cred, err := v.Get(name)
	if err != nil {
		return "", nil, err
	}
	if cred == nil {
		return "", nil, nil
	}
	return maskValue(cred.Value), &cred.Meta, nil
}

func maskValue(value string) string {
	prefixLen := 4
	if len(value) < prefixLen {
		prefixLen = len(value)
	}
	visible := value[:prefixLen]

	maskLen := len(value) - prefixLen
	if maskLen < 4 {
		maskLen = 4
	}
	if maskLen > 20 {
		maskLen = 20
	}
	return visible + strings.Repeat("*", maskLen)
}

// Delete removes the credential stored under name. Deleting an absent
// credential is not an error.
func (v *Vault) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := v.backend.Delete(context.Background(), pathFor(name)); err != nil {
		return fmt.Errorf("vault: delete credential %q: %w", name, err)
	}
	v.audit("vault_delete", name, audit.DecisionAllowed, "")
	return nil
}

// CredentialSummary is the metadata-only view returned by List.
type CredentialSummary struct {
	Name string
	Meta Meta
}

// List enumerates every stored credential's metadata, without revealing any
// plaintext. Corrupt entries are skipped.
func (v *Vault) List() ([]CredentialSummary, error) {
	keys, err := v.backend.List(context.Background(), prefix)
	if err != nil {
		return nil, fmt.Errorf("vault: list credentials: %w", err)
	}

	var out []CredentialSummary
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".json")
		data, err := v.backend.Get(context.Background(), key)
		if err != nil {
			continue
		}
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		out = append(out, CredentialSummary{Name: name, Meta: r.Meta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	v.audit("vault_list", "", audit.DecisionAllowed, "")
	return out, nil
}

// GenerateSSHKey generates an Ed25519 keypair, stores the private key under
// name (the base64 encoding of a PEM block, as ssh_exec and git expect to
// find it) and the public key under "{name}_PUB", and returns the public key
// in standard authorized-keys format with the comment
// "tamalebot-{name lowercased}".
func (v *Vault) GenerateSSHKey(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("vault: generate ed25519 key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("vault: convert ed25519 public key: %w", err)
	}
	authorizedLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	comment := fmt.Sprintf("tamalebot-%s", strings.ToLower(name))
	publicKey := authorizedLine + " " + comment

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return "", fmt.Errorf("vault: marshal ssh private key: %w", err)
	}
	privB64 := base64.StdEncoding.EncodeToString(pem.EncodeToMemory(block))
	if err := v.Set(name, privB64, Meta{Type: TypeSSHKey}); err != nil {
		return "", fmt.Errorf("vault: store ssh private key: %w", err)
	}
	if err := v.Set(name+"_PUB", publicKey, Meta{Type: TypeSSHPublicKey}); err != nil {
		return "", fmt.Errorf("vault: store ssh public key: %w", err)
	}

	return publicKey, nil
}
