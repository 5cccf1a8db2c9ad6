package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultOpenAIDim   = 1536

	defaultMaxBatch     = 512
	defaultMaxRetries   = 2
	defaultBackoff      = 250 * time.Millisecond
	defaultMaxRetryWait = 5 * time.Second
	maxErrorBody        = 4 << 10
)

// OpenAIConfig configures OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey    string
	APIBase   string
	Model     string
	Dimension int
	Timeout   time.Duration

	// MaxBatch caps the inputs sent per request. Larger batches are split.
	MaxBatch int
	// MaxRetries bounds retries of 429 and 5xx responses. Negative disables.
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	// MaxRetryWait caps any single retry delay, including Retry-After.
	MaxRetryWait time.Duration

	// Client overrides the HTTP client. Timeout is ignored when set.
	Client *http.Client
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	cfg      OpenAIConfig
	client   *http.Client
	endpoint string
}

// NewOpenAIEmbedder fills in defaults and returns an embedder for cfg.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}
	cfg.APIBase = strings.TrimRight(orDefault(cfg.APIBase, defaultOpenAIBase), "/")
	cfg.Model = orDefault(cfg.Model, defaultOpenAIModel)
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultOpenAIDim
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = defaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = defaultMaxRetryWait
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
		if cfg.Timeout > 0 {
			client.Timeout = cfg.Timeout
		}
	}
	return &OpenAIEmbedder{cfg: cfg, client: client, endpoint: cfg.APIBase + "/embeddings"}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (e *OpenAIEmbedder) Model() string  { return e.cfg.Model }
func (e *OpenAIEmbedder) Dimension() int { return e.cfg.Dimension }

// Embed embeds a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of at most MaxBatch inputs.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.MaxBatch {
		chunk := texts[start:min(start+e.cfg.MaxBatch, len(texts))]
		vecs, err := e.embedChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// statusError is a non-2xx answer from the endpoint.
type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai embedder: status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (e *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	req := embeddingRequest{Model: e.cfg.Model, Input: texts, EncodingFormat: "float"}
	if e.cfg.Dimension != defaultOpenAIDim {
		req.Dimensions = e.cfg.Dimension
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: encode request: %w", err)
	}

	delay := e.cfg.Backoff
	for attempt := 0; ; attempt++ {
		resp, err := e.post(ctx, payload)
		if err == nil {
			return e.place(resp, len(texts))
		}
		se, ok := err.(*statusError)
		if !ok || !se.retryable() || attempt >= e.cfg.MaxRetries {
			return nil, err
		}
		wait := delay
		if se.retryAfter > 0 {
			wait = se.retryAfter
		}
		wait = min(wait, e.cfg.MaxRetryWait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}

func (e *OpenAIEmbedder) post(ctx context.Context, payload []byte) (*embeddingResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			se.retryAfter = time.Duration(secs) * time.Second
		}
		return nil, se
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai embedder: decode response: %w", err)
	}
	return &parsed, nil
}

// place orders the returned vectors by their index and checks that every
// input got exactly one vector of the configured dimension.
func (e *OpenAIEmbedder) place(resp *embeddingResponse, n int) ([][]float64, error) {
	out := make([][]float64, n)
	for _, d := range resp.Data {
		switch {
		case d.Index < 0 || d.Index >= n:
			return nil, fmt.Errorf("openai embedder: index %d outside batch of %d", d.Index, n)
		case out[d.Index] != nil:
			return nil, fmt.Errorf("openai embedder: index %d returned twice", d.Index)
		case len(d.Embedding) != e.cfg.Dimension:
			return nil, fmt.Errorf("openai embedder: got %d dimensions, want %d", len(d.Embedding), e.cfg.Dimension)
		}
		out[d.Index] = d.Embedding
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("openai embedder: input %d has no vector", i)
		}
	}
	return out, nil
}
