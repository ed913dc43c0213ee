// Package creds resolves upstream provider credentials. The proxy core
// treats the resolver as an opaque capability: it asks for a token by
// provider name and signals invalidation on /reload. How credentials are
// discovered (environment, keychain, disk) is this package's business.
package creds

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ErrMissing is returned when no credential is available for a provider.
var ErrMissing = errors.New("credential not found")

// Resolver hands out provider credentials and supports cache invalidation.
type Resolver interface {
	Resolve(provider string) (string, error)
	Invalidate()
}

// Environment variables consulted per provider.
var envNames = map[string][]string{
	"blockrun":  {"BLOCKRUN_WALLET_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY", "CLAUDE_CODE_OAUTH_TOKEN"},
}

// EnvResolver resolves credentials from the process environment, with an
// optional statically configured wallet key taking precedence for the
// blockrun provider. Resolved values are cached until Invalidate.
type EnvResolver struct {
	mu        sync.Mutex
	cache     map[string]string
	walletKey string
}

// NewEnvResolver creates a resolver. walletKey may be empty; when set it
// overrides BLOCKRUN_WALLET_KEY.
func NewEnvResolver(walletKey string) *EnvResolver {
	return &EnvResolver{
		cache:     make(map[string]string),
		walletKey: walletKey,
	}
}

// Resolve returns the credential for a provider or ErrMissing.
func (r *EnvResolver) Resolve(provider string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[provider]; ok {
		return v, nil
	}

	if provider == "blockrun" && r.walletKey != "" {
		r.cache[provider] = r.walletKey
		return r.walletKey, nil
	}

	names, ok := envNames[provider]
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", ErrMissing, provider)
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			r.cache[provider] = v
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: provider %q", ErrMissing, provider)
}

// Invalidate drops all cached credentials so the next Resolve re-reads the
// environment.
func (r *EnvResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
}

// Any reports whether at least one of the given providers has a resolvable
// credential.
func (r *EnvResolver) Any(providers []string) bool {
	for _, p := range providers {
		if _, err := r.Resolve(p); err == nil {
			return true
		}
	}
	return false
}

// WalletID returns a stable opaque identifier derived from the wallet key,
// suitable for the health endpoint. Settlement itself happens outside this
// process; the raw key is never exposed.
func (r *EnvResolver) WalletID() string {
	key, err := r.Resolve("blockrun")
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256([]byte(key))
	return "0x" + hex.EncodeToString(sum[:20])
}
