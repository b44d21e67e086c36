// Package llmclient implements the multi-provider LLM fallback chain
// (spec §4.4): summarize_code, analyse_content, suggest_evolution.
package llmclient

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"unicode/utf8"

	"github.com/foldhq/fold/internal/foldxerr"
)

// CodeSummary is the result of summarize_code.
type CodeSummary struct {
	Title            string
	Summary          string
	Keywords         []string
	Tags             []string
	Exports          []string
	Dependencies     []string
	OriginalDate     string `json:"original_date"`
}

// ContentAnalysis is the result of analyse_content.
type ContentAnalysis struct {
	Keywords []string
	Tags     []string
	Context  string
}

// NeighborRef describes one neighbor memory passed to suggest_evolution.
type NeighborRef struct {
	ID      string
	Title   string
	Summary string
	Tags    []string
}

// Evolution is the result of suggest_evolution.
type Evolution struct {
	ShouldEvolve         bool                  `json:"should_evolve"`
	SuggestedConnections []SuggestedConnection `json:"suggested_connections"`
	NeighborContextUpdates map[string]string `json:"neighbor_context_updates"` // neighbor id -> new context
}

// SuggestedConnection is one proposed link from suggest_evolution.
type SuggestedConnection struct {
	TargetID   string   `json:"target_id"`
	LinkType   string   `json:"link_type"`
	Confidence *float64 `json:"confidence"`
}

// MaxContentLen is the UTF-8-safe truncation boundary applied before
// sending content to any provider (spec §4.4).
const MaxContentLen = 4000

// Provider is one LLM backend implementing the three core calls.
type Provider interface {
	Name() string
	SummarizeCode(ctx context.Context, content, filePath, language string) (*CodeSummary, error)
	AnalyseContent(ctx context.Context, content string) (*ContentAnalysis, error)
	SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []NeighborRef) (*Evolution, error)
}

// registered is a provider plus its selection priority.
type registered struct {
	provider Provider
	priority int
	enabled  bool
}

// Client iterates providers in priority order per spec §4.4's fallback
// policy: rate-limit/5xx/transport errors try the next provider; a
// non-429 4xx surfaces as LlmRequest; exhausting every provider surfaces
// as LlmExhausted.
type Client struct {
	providers []registered
	logger    *slog.Logger
	metrics   *callMetrics
}

// New constructs a Client from a priority-ordered set of providers.
func New(logger *slog.Logger, providers ...Provider) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	regs := make([]registered, len(providers))
	for i, p := range providers {
		regs[i] = registered{provider: p, priority: i, enabled: true}
	}
	return &Client{providers: regs, logger: logger, metrics: newCallMetrics()}
}

func (c *Client) ordered() []registered {
	out := make([]registered, 0, len(c.providers))
	for _, r := range c.providers {
		if r.enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].priority < out[j].priority })
	return out
}

// TruncateUTF8Safe truncates s to at most maxLen bytes at the largest
// valid UTF-8 code-point boundary <= maxLen (spec §4.4).
func TruncateUTF8Safe(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	b := s[:maxLen]
	for len(b) > 0 && !utf8.RuneStart(s[len(b)]) {
		b = b[:len(b)-1]
	}
	return b
}

func (c *Client) SummarizeCode(ctx context.Context, content, filePath, language string) (*CodeSummary, error) {
	content = TruncateUTF8Safe(content, MaxContentLen)
	var lastErr error
	for _, r := range c.ordered() {
		res, err := r.provider.SummarizeCode(ctx, content, filePath, language)
		if err == nil {
			c.metrics.recordSuccess(r.provider.Name(), "summarize_code")
			return res, nil
		}
		lastErr = c.handleProviderError(r, "summarize_code", err)
		if foldxerr.Is(lastErr, foldxerr.LlmRequest) {
			return nil, lastErr
		}
	}
	return nil, foldxerr.Wrap(foldxerr.LlmExhausted, lastErr, "all llm providers failed for summarize_code")
}

func (c *Client) AnalyseContent(ctx context.Context, content string) (*ContentAnalysis, error) {
	content = TruncateUTF8Safe(content, MaxContentLen)
	var lastErr error
	for _, r := range c.ordered() {
		res, err := r.provider.AnalyseContent(ctx, content)
		if err == nil {
			c.metrics.recordSuccess(r.provider.Name(), "analyse_content")
			return res, nil
		}
		lastErr = c.handleProviderError(r, "analyse_content", err)
		if foldxerr.Is(lastErr, foldxerr.LlmRequest) {
			return nil, lastErr
		}
	}
	return nil, foldxerr.Wrap(foldxerr.LlmExhausted, lastErr, "all llm providers failed for analyse_content")
}

func (c *Client) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []NeighborRef) (*Evolution, error) {
	newExcerpt = TruncateUTF8Safe(newExcerpt, MaxContentLen)
	var lastErr error
	for _, r := range c.ordered() {
		res, err := r.provider.SuggestEvolution(ctx, newExcerpt, neighbors)
		if err == nil {
			c.metrics.recordSuccess(r.provider.Name(), "suggest_evolution")
			return res, nil
		}
		lastErr = c.handleProviderError(r, "suggest_evolution", err)
		if foldxerr.Is(lastErr, foldxerr.LlmRequest) {
			return nil, lastErr
		}
	}
	return nil, foldxerr.Wrap(foldxerr.LlmExhausted, lastErr, "all llm providers failed for suggest_evolution")
}

// handleProviderError classifies err per spec §4.4/§7 and logs it.
func (c *Client) handleProviderError(r registered, op string, err error) error {
	c.metrics.recordFailure(r.provider.Name(), op)

	if se, ok := err.(*StatusError); ok {
		if se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500 {
			c.logger.Warn("llm provider rate-limited or unavailable, trying next",
				"provider", r.provider.Name(), "op", op, "status", se.StatusCode)
			return err
		}
		if se.StatusCode >= 400 {
			c.logger.Warn("llm provider rejected request",
				"provider", r.provider.Name(), "op", op, "status", se.StatusCode)
			return foldxerr.Wrap(foldxerr.LlmRequest, err, "provider "+r.provider.Name()+" rejected request")
		}
	}
	c.logger.Warn("llm provider call failed, trying next",
		"provider", r.provider.Name(), "op", op, "error", err)
	return err
}

// StatusError carries an HTTP status code from a provider's transport.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "llm provider http error"
}
