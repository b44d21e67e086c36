package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foldhq/fold/internal/foldxerr"
)

// HTTPProvider is a hand-rolled chat-completion client for providers with
// no ecosystem SDK in the retrieved example pack (openai-compat, gemini,
// openrouter). It mirrors the request/response shape the teacher's own
// vectorstore client uses for a REST-only collaborator.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPProvider constructs a provider posting OpenAI-compatible
// chat-completion requests to endpoint.
func NewHTTPProvider(name, endpoint, apiKey, model string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPProvider{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) SummarizeCode(ctx context.Context, content, filePath, language string) (*CodeSummary, error) {
	prompt := fmt.Sprintf(summarizeCodePrompt, filePath, language, content)
	raw, err := p.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out CodeSummary
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing summarize_code response")
	}
	return &out, nil
}

func (p *HTTPProvider) AnalyseContent(ctx context.Context, content string) (*ContentAnalysis, error) {
	prompt := fmt.Sprintf(analyseContentPrompt, content)
	raw, err := p.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out ContentAnalysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing analyse_content response")
	}
	return &out, nil
}

func (p *HTTPProvider) SuggestEvolution(ctx context.Context, newExcerpt string, neighbors []NeighborRef) (*Evolution, error) {
	neighborJSON, _ := json.Marshal(neighbors)
	prompt := fmt.Sprintf(suggestEvolutionPrompt, newExcerpt, string(neighborJSON))
	raw, err := p.chat(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var out Evolution
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, foldxerr.Wrap(foldxerr.LlmRequest, err, "parsing suggest_evolution response")
	}
	return &out, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *HTTPProvider) chat(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", foldxerr.Wrap(foldxerr.LlmRequest, err, "marshalling chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", foldxerr.Wrap(foldxerr.LlmRequest, err, "building chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err // transport error: caller treats as retryable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", foldxerr.Wrap(foldxerr.LlmRequest, err, "reading chat response")
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", foldxerr.Wrap(foldxerr.LlmRequest, err, "decoding chat response")
	}
	if len(parsed.Choices) == 0 {
		return "", foldxerr.New(foldxerr.LlmRequest, p.name+" returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
