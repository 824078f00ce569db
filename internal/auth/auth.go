// Package auth implements the Authentication Layer: bearer session
// tokens and long-lived API keys, each carrying a permission set, plus
// the grammar for checking a required permission against it. Tokens
// and keys are held raw, as map keys behind a sync.RWMutex; a sha256
// prefix of them stands in for the raw value in listings and error messages.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// Permission wildcards and tiers (§4.5).
const (
	PermAll   = "*"
	PermRead  = "read"
	PermWrite = "write"
	PermAdmin = "admin"
)

// Identity is the authenticated caller returned by Authenticate.
type Identity struct {
	Subject     string
	Permissions []string
	Via         string // "token" or "apikey"
}

// Authenticator validates bearer tokens and API keys and answers
// permission checks.
type Authenticator struct {
	mu      sync.RWMutex
	apiKeys map[string]*model.APIKey // keyed by raw key value
	tokens  map[string]*model.Token  // keyed by raw token value
}

// New creates an empty Authenticator.
func New() *Authenticator {
	return &Authenticator{
		apiKeys: make(map[string]*model.APIKey),
		tokens:  make(map[string]*model.Token),
	}
}

func hashForLog(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:8])
}

func randomSecret(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf)), nil
}

// CreateAPIKey mints a new key with the given name and permission set.
// The raw key value is returned exactly once; only its hash is ever
// logged.
func (a *Authenticator) CreateAPIKey(name string, permissions []string) (*model.APIKey, error) {
	raw, err := randomSecret("pbk")
	if err != nil {
		return nil, apierr.NewInternal("KEY_GENERATION_FAILED", err)
	}

	key := &model.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		Key:         raw,
		Permissions: permissions,
		CreatedAt:   time.Now(),
	}

	a.mu.Lock()
	a.apiKeys[raw] = key
	a.mu.Unlock()
	return key, nil
}

// DeleteAPIKey revokes a key by id.
func (a *Authenticator) DeleteAPIKey(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for raw, k := range a.apiKeys {
		if k.ID == id {
			delete(a.apiKeys, raw)
			return nil
		}
	}
	return apierr.NewNotFound("apiKey", id)
}

// ListAPIKeys returns every key with its raw value redacted.
func (a *Authenticator) ListAPIKeys() []model.APIKey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.APIKey, 0, len(a.apiKeys))
	for _, k := range a.apiKeys {
		redacted := *k
		redacted.Key = hashForLog(k.Key)
		out = append(out, redacted)
	}
	return out
}

// GenerateToken mints a session bearer token for userID, valid for ttl.
func (a *Authenticator) GenerateToken(userID string, permissions []string, ttl time.Duration) (*model.Token, error) {
	raw, err := randomSecret("pbt")
	if err != nil {
		return nil, apierr.NewInternal("TOKEN_GENERATION_FAILED", err)
	}

	tok := &model.Token{
		UserID:      userID,
		Token:       raw,
		Permissions: permissions,
		ExpiresAt:   time.Now().Add(ttl),
	}

	a.mu.Lock()
	a.tokens[raw] = tok
	a.mu.Unlock()
	return tok, nil
}

// RevokeToken removes a session token immediately.
func (a *Authenticator) RevokeToken(raw string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tokens[raw]; !ok {
		return apierr.NewNotFound("token", hashForLog(raw))
	}
	delete(a.tokens, raw)
	return nil
}

// ListTokens returns every live token with its raw value redacted.
func (a *Authenticator) ListTokens() []model.Token {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Token, 0, len(a.tokens))
	for _, t := range a.tokens {
		redacted := *t
		redacted.Token = hashForLog(t.Token)
		out = append(out, redacted)
	}
	return out
}

// Authenticate resolves a raw Authorization header value (either a
// bearer token or a raw API key) to an Identity, per §4.5. Expired
// tokens are evicted on lookup.
func (a *Authenticator) Authenticate(raw string) (Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tok, ok := a.tokens[raw]; ok {
		if time.Now().After(tok.ExpiresAt) {
			delete(a.tokens, raw)
			return Identity{}, apierr.NewUnauthorized("token expired")
		}
		tok.LastUsedAt = time.Now()
		return Identity{Subject: tok.UserID, Permissions: tok.Permissions, Via: "token"}, nil
	}

	if key, ok := a.apiKeys[raw]; ok {
		key.LastUsedAt = time.Now()
		return Identity{Subject: key.Name, Permissions: key.Permissions, Via: "apikey"}, nil
	}

	return Identity{}, apierr.NewUnauthorized("invalid credentials")
}

// HasPermission implements §4.5's grammar: "*" or "admin" grants
// everything, an exact tier match ("read"/"write") grants that tier, and
// any other entry is treated as a resource glob checked against
// resource.
func HasPermission(permissions []string, required, resource string) bool {
	for _, p := range permissions {
		switch p {
		case PermAll, PermAdmin:
			return true
		case required:
			return true
		}
		if resource != "" && matchResourcePattern(p, resource) {
			return true
		}
	}
	return false
}

// matchResourcePattern supports a trailing "*" glob, e.g. "templates/*".
func matchResourcePattern(pattern, resource string) bool {
	if pattern == resource {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(resource) >= len(prefix) && resource[:len(prefix)] == prefix
	}
	return false
}
