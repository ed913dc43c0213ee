// Package proxy is the HTTP pipeline: it accepts OpenAI-format chat
// completions on the loopback interface, routes them through the
// classifier, forwards to the chosen upstream with fallback, and streams
// the answer back while emitting telemetry.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clawinfra/clawrouter/internal/catalog"
	"github.com/clawinfra/clawrouter/internal/creds"
	"github.com/clawinfra/clawrouter/internal/router"
	"github.com/clawinfra/clawrouter/internal/telemetry"
)

// DefaultPort is the loopback port the proxy listens on.
const DefaultPort = 18800

const maxRequestBytes = 16 << 20

// Error kinds surfaced in the JSON error envelope.
const (
	errInvalidRequest      = "invalid_request"
	errUpstreamUnreachable = "upstream_unreachable"
	errAuthMissing         = "auth_missing"
	errInternal            = "internal_error"
)

// Server is the proxy HTTP server.
type Server struct {
	router   *router.Router
	upstream *Upstream
	cache    router.Cache
	creds    creds.Resolver
	cat      *catalog.Catalog
	stats    *Stats
	hooks    telemetry.Hooks
	feed     *Feed
	wallet   string
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer wires the pipeline together.
func NewServer(
	rt *router.Router,
	upstream *Upstream,
	cache router.Cache,
	resolver creds.Resolver,
	cat *catalog.Catalog,
	stats *Stats,
	hooks telemetry.Hooks,
	feed *Feed,
	wallet string,
	logger *slog.Logger,
) *Server {
	return &Server{
		router:   rt,
		upstream: upstream,
		cache:    cache,
		creds:    resolver,
		cat:      cat,
		stats:    stats,
		hooks:    hooks,
		feed:     feed,
		wallet:   wallet,
		logger:   logger.With("component", "proxy"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/reload", s.handleReload)
	if s.feed != nil {
		mux.HandleFunc("/ws/telemetry", s.feed.Handle)
	}
	return s.loggingMiddleware(mux)
}

// Serve runs the server on an already-bound listener until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: streamed completions are open-ended.
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("proxy listening", "addr", ln.Addr().String())
	s.hooks.Ready(ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down proxy")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// handleChatCompletions is the main pipeline entry.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	start := time.Now()

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidRequest, "unreadable body")
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidRequest, "malformed JSON body")
		return
	}

	req, err := parseRequest(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errInvalidRequest, err.Error())
		return
	}

	var decision router.RoutingDecision
	if req.Model == "auto" {
		decision = s.router.Route(r.Context(), req)
	} else {
		entry, ok := s.cat.Model(req.Model)
		if !ok {
			s.writeError(w, http.StatusBadRequest, errInvalidRequest,
				fmt.Sprintf("unknown model %q (use \"auto\" or a catalog id)", req.Model))
			return
		}
		decision = s.pinnedDecision(entry, req)
	}

	if decisionJSON, err := json.Marshal(decision); err == nil {
		w.Header().Set("X-ClawRouter-Decision", string(decisionJSON))
	}

	s.hooks.Routed(requestID, decision)
	if s.feed != nil {
		s.feed.Publish("routed", decision)
	}

	rec := &statusRecorder{ResponseWriter: w}
	result, err := s.upstream.Forward(r.Context(), rec, body, decision)
	if err != nil {
		s.finishWithError(rec, r, requestID, decision, start, err)
		return
	}

	// Counters and the savings aggregate only move once an answer was
	// actually served; a failed request books nothing.
	usage := s.usageRecord(requestID, decision, result, start)
	s.stats.Record(decision.Tier, result.Model, usage.SavingsUSD)
	s.hooks.Complete(usage)
	if s.feed != nil {
		s.feed.Publish("completed", usage)
	}
}

// finishWithError maps pipeline failures onto the wire and telemetry.
func (s *Server) finishWithError(rec *statusRecorder, r *http.Request, requestID string, decision router.RoutingDecision, start time.Time, err error) {
	var (
		statusErr  *UpstreamStatusError
		unreachErr *UnreachableError
		authErr    *AuthError
	)

	switch {
	case r.Context().Err() != nil:
		// Client went away; upstream was cancelled with it. Nothing left
		// to write.
		s.hooks.Error(requestID, "client_cancelled", r.Context().Err())

	case errors.As(err, &authErr):
		s.hooks.Error(requestID, errAuthMissing, err)
		if !rec.wroteHeader {
			s.writeErrorBody(rec, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{
					"type":     errAuthMissing,
					"provider": authErr.Provider,
				},
			})
		}

	case errors.As(err, &statusErr):
		s.hooks.Error(requestID, "upstream_error", err)
		if !rec.wroteHeader {
			rec.Header().Set("Content-Type", "application/json")
			rec.WriteHeader(statusErr.Status)
			rec.Write(statusErr.Body)
		}

	case errors.As(err, &unreachErr):
		s.hooks.Error(requestID, errUpstreamUnreachable, err)
		if !rec.wroteHeader {
			s.writeErrorBody(rec, http.StatusBadGateway, map[string]any{
				"error": map[string]any{
					"type":        errUpstreamUnreachable,
					"message":     unreachErr.Last.Error(),
					"triedModels": unreachErr.Tried,
				},
			})
		}

	default:
		s.hooks.Error(requestID, errInternal, err)
		s.logger.Error("pipeline failure", "request_id", requestID, "error", err)
		if !rec.wroteHeader {
			s.writeError(rec, http.StatusInternalServerError, errInternal, "internal error")
		}
	}

	s.stats.RecordFailure()
	usage := telemetry.UsageRecord{
		RequestID:  requestID,
		Model:      decision.Model,
		Tier:       decision.Tier,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "failed",
	}
	s.hooks.Complete(usage)
	if s.feed != nil {
		s.feed.Publish("failed", usage)
	}
}

func (s *Server) usageRecord(requestID string, decision router.RoutingDecision, result *ForwardResult, start time.Time) telemetry.UsageRecord {
	cost := decision.CostEstimate
	if result.PromptTokens > 0 || result.CompletionTokens > 0 {
		if entry, ok := s.cat.Model(result.Model); ok {
			cost = (float64(result.PromptTokens)*entry.InputPerMTok +
				float64(result.CompletionTokens)*entry.OutputPerMTok) / 1_000_000
		}
	}
	savings := decision.BaselineCost - cost
	if savings < 0 {
		savings = 0
	}
	return telemetry.UsageRecord{
		RequestID:        requestID,
		Model:            result.Model,
		Tier:             decision.Tier,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		CostUSD:          cost,
		SavingsUSD:       savings,
		DurationMs:       time.Since(start).Milliseconds(),
		Status:           "completed",
	}
}

// pinnedDecision is used when the client names a concrete model: no
// classification, but cost accounting and the tier fallback chain still
// apply, with the pinned model leading the chain.
func (s *Server) pinnedDecision(entry catalog.ModelEntry, req router.Request) router.RoutingDecision {
	chain := []string{entry.ID}
	for _, id := range s.cat.Chain(entry.Tier) {
		if id != entry.ID {
			chain = append(chain, id)
		}
	}

	inputTokens := 0
	for _, m := range req.Messages {
		inputTokens += router.EstimateTokens(m.Content)
	}

	expected := router.ExpectedOutputTokens(req.MaxTokens, s.cat.TierCap(entry.Tier))
	cost := router.Price(entry, inputTokens, expected)
	baseCost := router.Price(s.cat.Baseline(), inputTokens, expected)
	savings := 0.0
	if baseCost > 0 {
		if savings = (baseCost - cost) / baseCost; savings < 0 {
			savings = 0
		}
	}

	return router.RoutingDecision{
		Model:         entry.ID,
		Tier:          entry.Tier,
		Confidence:    1.0,
		Method:        router.MethodRules,
		Reasoning:     "model pinned by client; classification skipped",
		CostEstimate:  cost,
		BaselineCost:  baseCost,
		Savings:       savings,
		FallbackChain: chain,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wallet := s.wallet
	if wallet == "" {
		wallet = "none"
	}
	s.respondJSON(w, map[string]any{
		"status":        "ok",
		"wallet":        wallet,
		"uptimeSeconds": s.stats.Uptime(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respondJSON(w, s.stats.Snapshot())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type modelObj struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	data := []modelObj{{ID: "auto", Object: "model", OwnedBy: "clawrouter"}}
	for _, id := range s.cat.IDs() {
		entry, _ := s.cat.Model(id)
		data = append(data, modelObj{ID: id, Object: "model", OwnedBy: entry.Provider})
	}
	s.respondJSON(w, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.creds.Invalidate()
	s.cache.Invalidate()
	s.logger.Info("credential and classification caches cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeErrorBody(w, status, map[string]any{
		"error": map[string]any{
			"type":    kind,
			"message": message,
		},
	})
}

func (s *Server) writeErrorBody(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("error encoding failed", "error", err)
	}
}

// parseRequest extracts the routing view from the raw body. Unknown fields
// stay in the map and are forwarded untouched.
func parseRequest(body map[string]any) (router.Request, error) {
	model, _ := body["model"].(string)
	if model == "" {
		return router.Request{}, fmt.Errorf("missing model field")
	}

	rawMessages, ok := body["messages"].([]any)
	if !ok || len(rawMessages) == 0 {
		return router.Request{}, fmt.Errorf("missing or empty messages array")
	}

	req := router.Request{Model: model}
	for _, rm := range rawMessages {
		m, ok := rm.(map[string]any)
		if !ok {
			return router.Request{}, fmt.Errorf("message entries must be objects")
		}
		role, _ := m["role"].(string)
		req.Messages = append(req.Messages, router.Message{
			Role:    role,
			Content: contentText(m["content"]),
		})
	}

	if v, ok := body["max_tokens"].(float64); ok {
		req.MaxTokens = int(v)
	}
	if v, ok := body["stream"].(bool); ok {
		req.Stream = v
	}
	return req, nil
}

// contentText flattens an OpenAI message content, which is either a plain
// string or an array of typed parts.
func contentText(v any) string {
	switch content := v.(type) {
	case string:
		return content
	case []any:
		var out string
		for _, part := range content {
			p, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := p["text"].(string); ok {
				out += text
			}
		}
		return out
	default:
		return ""
	}
}

// statusRecorder remembers whether headers were already flushed so error
// handling never double-writes.
type statusRecorder struct {
	http.ResponseWriter
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Flush passes through so streamed responses keep flushing per chunk.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
