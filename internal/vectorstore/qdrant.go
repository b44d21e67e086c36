package vectorstore

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

// QdrantClient talks to the Qdrant REST API. It implements Store.
type QdrantClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewQdrantClient constructs a client with the given request timeout.
func NewQdrantClient(baseURL, apiKey string, timeout time.Duration) *QdrantClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QdrantClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *QdrantClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "building health request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "qdrant health check")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return foldxerr.New(foldxerr.Vector, fmt.Sprintf("qdrant health check: status %d", resp.StatusCode))
	}
	return nil
}

func (c *QdrantClient) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := c.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return c.put(ctx, "/collections/"+name, body)
}

func (c *QdrantClient) DeleteCollection(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/collections/"+name, nil)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "building delete-collection request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "qdrant delete collection")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return foldxerr.New(foldxerr.Vector, fmt.Sprintf("qdrant delete collection: status %d", resp.StatusCode))
	}
	return nil
}

func (c *QdrantClient) Upsert(ctx context.Context, collection string, points []Point) error {
	wire := make([]qdrantPoint, len(points))
	for i, p := range points {
		wire[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	body := map[string]any{"points": wire}
	return c.put(ctx, "/collections/"+collection+"/points", body)
}

func (c *QdrantClient) Delete(ctx context.Context, collection string, ids []string) error {
	body := map[string]any{"points": ids}
	_, err := c.post(ctx, "/collections/"+collection+"/points/delete", body)
	return err
}

func (c *QdrantClient) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]any) ([]SearchHit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(filter) > 0 {
		body["filter"] = filter
	}

	respBody, err := c.post(ctx, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, foldxerr.Wrap(foldxerr.Vector, err, "decoding qdrant search response")
	}

	hits := make([]SearchHit, len(resp.Result))
	for i, r := range resp.Result {
		hits[i] = SearchHit{ID: r.ID, Score: r.Score, Payload: r.Payload}
	}
	return hits, nil
}

func (c *QdrantClient) Count(ctx context.Context, collection string) (int, error) {
	respBody, err := c.post(ctx, "/collections/"+collection+"/points/count", map[string]any{"exact": true})
	if err != nil {
		return 0, err
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, foldxerr.Wrap(foldxerr.Vector, err, "decoding qdrant count response")
	}
	return resp.Result.Count, nil
}

func (c *QdrantClient) collectionExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections/"+name, nil)
	if err != nil {
		return false, foldxerr.Wrap(foldxerr.Vector, err, "building collection-exists request")
	}
	c.setAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, foldxerr.Wrap(foldxerr.Vector, err, "checking collection existence")
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

func (c *QdrantClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
}

func (c *QdrantClient) put(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "marshalling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Vector, err, fmt.Sprintf("qdrant PUT %s", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return foldxerr.New(foldxerr.Vector, fmt.Sprintf("qdrant PUT %s: status %d: %s", path, resp.StatusCode, string(respBody)))
	}
	return nil
}

func (c *QdrantClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Vector, err, "marshalling request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Vector, err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Vector, err, fmt.Sprintf("qdrant POST %s", path))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, foldxerr.Wrap(foldxerr.Vector, err, "reading response")
	}
	if resp.StatusCode >= 400 {
		return nil, foldxerr.New(foldxerr.Vector, fmt.Sprintf("qdrant POST %s: status %d: %s", path, resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}
