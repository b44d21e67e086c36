package embedder

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

// HTTPProvider is an Ollama batch-embedding client, grounded on the
// shape of the teacher's OllamaClient.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	dim        int
	httpClient *http.Client
}

// NewHTTPProvider constructs a provider hitting POST baseURL+"/api/embed"
// and decoding Ollama's {"embeddings": [...]} response; no other endpoint
// or response shape is supported.
func NewHTTPProvider(name, baseURL, apiKey, model string, dim int, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dim:        dim,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Dimension() int { return p.dim }

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embedRequest{Model: p.model, Input: texts}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Embed, err, "marshalling embed request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Embed, err, "building embed request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Embed, err, fmt.Sprintf("%s embed request", p.name))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Embed, err, "reading embed response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, foldxerr.New(foldxerr.Embed, fmt.Sprintf("%s embed: status %d: %s", p.name, resp.StatusCode, string(body)))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Embed, err, "decoding embed response")
	}
	if len(result.Embeddings) != len(texts) {
		return nil, foldxerr.New(foldxerr.Embed, fmt.Sprintf("%s returned %d embeddings for %d inputs", p.name, len(result.Embeddings), len(texts)))
	}
	return result.Embeddings, nil
}

// HealthCheck verifies the provider endpoint is reachable.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Embed, err, "building health request")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Embed, err, fmt.Sprintf("%s health check", p.name))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return foldxerr.New(foldxerr.Embed, fmt.Sprintf("%s health check: status %d", p.name, resp.StatusCode))
	}
	return nil
}
