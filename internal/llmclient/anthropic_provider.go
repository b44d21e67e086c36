package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/foldhq/fold/internal/foldxerr"
)

// AnthropicProvider implements Provider against the Anthropic Messages
// API, grounded on the teacher pack's haikuClient (retry/backoff shape).
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// NewAnthropicProvider constructs a provider. apiKey must be non-empty.
func NewAnthropicProvider(apiKey, model string, timeout time.Duration) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, foldxerr.New(foldxerr.InvalidInput, "anthropic provider requires an api key")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(model),
		timeout: timeout,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) SummarizeCode(ctx context.Context, content, filePath, language string) (*CodeSummary, error) {
	prompt := fmt.Sprintf(summarizeCodePrompt, filePath, language, content)
	raw, err := p.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out CodeSummary
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing summarize_code response")
	}
	return &out, nil
}

func (p *AnthropicProvider) AnalyseContent(ctx context.Context, content string) (*ContentAnalysis, error) {
	prompt := fmt.Sprintf(analyseContentPrompt, content)
	raw, err := p.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out ContentAnalysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing analyse_content response")
	}
	return &out, nil
}

func (p *AnthropicProvider) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []NeighborRef) (*Evolution, error) {
	neighborJSON, _ := json.Marshal(neighbors)
	prompt := fmt.Sprintf(suggestEvolutionPrompt, newExcerpt, string(neighborJSON))
	raw, err := p.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out Evolution
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing suggest_evolution response")
	}
	return &out, nil
}

func (p *AnthropicProvider) callWithRetry(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = p.timeout

	var result string
	op := func() error {
		msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.F(p.model),
			MaxTokens: anthropic.F(int64(1024)),
			Messages: anthropic.F([]anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			}),
		})
		if err != nil {
			if se := asStatusError(err); se != nil {
				if se.StatusCode == 429 || se.StatusCode >= 500 {
					return err // retryable
				}
				return backoff.Permanent(se)
			}
			return err
		}
		if len(msg.Content) == 0 {
			return backoff.Permanent(foldxerr.New(foldxerr.LlmRequest, "empty response from anthropic"))
		}
		result = msg.Content[0].Text
		return nil
	}

	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 3)); err != nil {
		var se *StatusError
		if errAs(err, &se) {
			return "", se
		}
		return "", err
	}
	return result, nil
}

const summarizeCodePrompt = `Summarize this source file for a semantic memory index.
File: %s
Language: %s

%s

Respond as JSON: {"title":"","summary":"","keywords":[],"tags":[],"exports":[],"dependencies":[],"original_date":""}`

const analyseContentPrompt = `Analyse the following content and extract keywords, tags, and a 3-5 sentence context summary.

%s

Respond as JSON: {"keywords":[],"tags":[],"context":""}`

const suggestEvolutionPrompt = `A new memory was added:
%s

Its nearest neighbors:
%s

Decide whether this memory should be linked to any neighbors. Respond as JSON:
{"should_evolve":false,"suggested_connections":[{"target_id":"","link_type":"related","confidence":0.0}],"neighbor_context_updates":{}}`
