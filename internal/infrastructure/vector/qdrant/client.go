package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/realvibe/site-copilot/internal/core/domain"
	"github.com/realvibe/site-copilot/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client searches the per-deployment chunk collection. Every query carries
// the site id as a payload filter; chunks of other sites are unreachable by
// construction.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) SearchVector(ctx context.Context, siteID string, queryVector []float32, limit int) ([]domain.RetrievedChunk, error) {
	body := map[string]any{
		"query":        queryVector,
		"using":        denseVectorName,
		"limit":        limit,
		"with_payload": true,
		"filter":       siteFilter(siteID),
	}
	return c.query(ctx, "qdrant.search_vector", body)
}

func (c *Client) SearchLexical(ctx context.Context, siteID, queryText string, limit int) ([]domain.RetrievedChunk, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"query":        map[string]any{"indices": sparse.Indices, "values": sparse.Values},
		"using":        sparseVectorName,
		"limit":        limit,
		"with_payload": true,
		"filter":       siteFilter(siteID),
	}
	return c.query(ctx, "qdrant.search_lexical", body)
}

func (c *Client) query(ctx context.Context, operation string, body map[string]any) ([]domain.RetrievedChunk, error) {
	var out []domain.RetrievedChunk
	call := func(callCtx context.Context) error {
		chunks, err := c.doQuery(callCtx, operation, body)
		if err != nil {
			return err
		}
		out = chunks
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded(operation, err)
	}
	return out, nil
}

func (c *Client) doQuery(ctx context.Context, operation string, body map[string]any) ([]domain.RetrievedChunk, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	// A missing collection means no site has indexed chunks yet; that is
	// an empty corpus, not a retrieval failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	var queryResp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}

	out := make([]domain.RetrievedChunk, 0, len(queryResp.Result.Points))
	for _, p := range queryResp.Result.Points {
		out = append(out, domain.RetrievedChunk{
			ChunkID:    stringPayload(p.Payload, "chunk_id"),
			FileID:     stringPayload(p.Payload, "file_id"),
			FileName:   stringPayload(p.Payload, "file_name"),
			Page:       intPayload(p.Payload, "page"),
			Text:       stringPayload(p.Payload, "text"),
			Score:      p.Score,
			UploadedAt: timePayload(p.Payload, "uploaded_at"),
		})
	}
	return out, nil
}

func siteFilter(siteID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "site_id",
				"match": map[string]any{"value": siteID},
			},
		},
	}
}

func stringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func intPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func timePayload(payload map[string]any, key string) time.Time {
	s, ok := payload[key].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
