package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clawinfra/clawrouter/internal/catalog"
	"github.com/clawinfra/clawrouter/internal/creds"
	"github.com/clawinfra/clawrouter/internal/router"
)

// maxUpstreamAttempts bounds fallback traversal per request: the primary
// plus at most two fallbacks, regardless of chain length.
const maxUpstreamAttempts = 3

const maxResponseBytes = 32 << 20

// Upstream forwards chat-completion bodies to providers, walking the
// fallback chain on failure and streaming responses through unbuffered.
type Upstream struct {
	client *http.Client
	cat    *catalog.Catalog
	creds  creds.Resolver
	health *HealthRegistry
	logger *slog.Logger
}

// NewUpstream creates the forwarding client. The http.Client carries no
// overall timeout: streamed responses are open-ended and cancellation
// rides the request context.
func NewUpstream(cat *catalog.Catalog, resolver creds.Resolver, health *HealthRegistry, logger *slog.Logger) *Upstream {
	return &Upstream{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   8,
				ResponseHeaderTimeout: 120 * time.Second,
			},
		},
		cat:    cat,
		creds:  resolver,
		health: health,
		logger: logger.With("component", "upstream"),
	}
}

// ForwardResult summarises a successful forward for usage accounting.
type ForwardResult struct {
	Model            string
	Attempts         int
	PromptTokens     int
	CompletionTokens int
	Streamed         bool
}

// UpstreamStatusError is a non-2xx answer that survived the fallback
// chain; the client gets the upstream status and body verbatim.
type UpstreamStatusError struct {
	Status int
	Body   []byte
	Tried  []string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned %d after trying %v", e.Status, e.Tried)
}

// UnreachableError means every attempt failed at the network level.
type UnreachableError struct {
	Tried []string
	Last  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("no upstream reachable, tried %v: %v", e.Tried, e.Last)
}

// AuthError means a provider rejected our credentials even after a
// refresh; it short-circuits the chain.
type AuthError struct {
	Provider string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q refused authentication", e.Provider)
}

// Forward walks the decision's fallback chain, sending the request body
// (with the model field rewritten per attempt) until a 2xx lands, then
// relays the response to w. Headers already set on w are sent with the
// first byte.
func (u *Upstream) Forward(ctx context.Context, w http.ResponseWriter, body map[string]any, decision router.RoutingDecision) (*ForwardResult, error) {
	chain := u.health.PreferHealthy(decision.FallbackChain)
	if len(chain) > maxUpstreamAttempts {
		chain = chain[:maxUpstreamAttempts]
	}

	var (
		tried      []string
		lastStatus int
		lastBody   []byte
		lastErr    error
	)

	for attempt, modelID := range chain {
		resp, err := u.attempt(ctx, body, modelID, attempt)
		if err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, authErr
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			u.health.RecordFailure(modelID)
			tried = append(tried, modelID)
			lastErr = err
			u.logger.Warn("upstream attempt failed",
				"model", modelID,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			u.health.RecordSuccess(modelID)
			result, relayErr := u.relay(ctx, w, resp, modelID)
			if relayErr != nil {
				return nil, relayErr
			}
			result.Attempts = attempt + 1
			return result, nil
		}

		lastStatus = resp.StatusCode
		lastBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		u.health.RecordFailure(modelID)
		tried = append(tried, modelID)
		u.logger.Warn("upstream error status",
			"model", modelID,
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	if lastStatus != 0 {
		return nil, &UpstreamStatusError{Status: lastStatus, Body: lastBody, Tried: tried}
	}
	return nil, &UnreachableError{Tried: tried, Last: lastErr}
}

// attempt sends one upstream request with the body's model rewritten. An
// auth rejection triggers a single credential refresh and retry before
// giving up on the whole chain.
func (u *Upstream) attempt(ctx context.Context, body map[string]any, modelID string, attempt int) (*http.Response, error) {
	entry, ok := u.cat.Model(modelID)
	if !ok {
		return nil, fmt.Errorf("model %q not in catalog", modelID)
	}
	provider, ok := u.cat.Provider(entry.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %q not in catalog", entry.Provider)
	}

	resp, err := u.send(ctx, body, entry.ID, provider)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		u.creds.Invalidate()
		resp, err = u.send(ctx, body, entry.ID, provider)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			return nil, &AuthError{Provider: provider.Name}
		}
	}
	return resp, nil
}

func (u *Upstream) send(ctx context.Context, body map[string]any, modelID string, provider catalog.ProviderInfo) (*http.Response, error) {
	token, err := u.creds.Resolve(provider.Name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s credentials: %w", provider.Name, err)
	}

	// Fresh body per attempt; only the model field changes, everything
	// else is forwarded untouched.
	body["model"] = modelID
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(provider.AuthHeader, provider.AuthPrefix+token)
	for k, v := range provider.ExtraHeaders {
		req.Header.Set(k, v)
	}
	if stream, _ := body["stream"].(bool); stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return u.client.Do(req)
}

// relay copies the upstream response to the client. Streaming bodies are
// forwarded chunk by chunk with a flush per SSE line; usage is scraped
// from the payload where the upstream reports it.
func (u *Upstream) relay(ctx context.Context, w http.ResponseWriter, resp *http.Response, modelID string) (*ForwardResult, error) {
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)

	result := &ForwardResult{Model: modelID}

	if strings.Contains(contentType, "text/event-stream") {
		result.Streamed = true
		return result, u.relayStream(ctx, w, resp.Body, result)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	scrapeUsage(raw, result)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("write response: %w", err)
	}
	return result, nil
}

func (u *Upstream) relayStream(ctx context.Context, w http.ResponseWriter, body io.Reader, result *ForwardResult) error {
	flusher, _ := w.(http.Flusher)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if data, ok := bytes.CutPrefix(line, []byte("data: ")); ok && !bytes.Equal(data, []byte("[DONE]")) {
			scrapeUsage(data, result)
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("write stream: %w", err)
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return fmt.Errorf("write stream: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// scrapeUsage pulls token counts out of an upstream payload when present.
func scrapeUsage(data []byte, result *ForwardResult) {
	var probe struct {
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Usage == nil {
		return
	}
	result.PromptTokens = probe.Usage.PromptTokens
	result.CompletionTokens = probe.Usage.CompletionTokens
}

// Complete performs the one-shot completion the LLM classifier uses.
func (u *Upstream) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": 0,
	}

	entry, ok := u.cat.Model(model)
	if !ok {
		return "", fmt.Errorf("model %q not in catalog", model)
	}
	provider, ok := u.cat.Provider(entry.Provider)
	if !ok {
		return "", fmt.Errorf("provider %q not in catalog", entry.Provider)
	}

	resp, err := u.send(ctx, body, model, provider)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
