// Package openai implements the remote extraction backend over an
// OpenAI-compatible embeddings API serving a multimodal (CLIP-style) model.
// The provider does its own preprocessing, so this backend consumes encoded
// image bytes directly instead of local pixel tensors.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
	"github.com/framefinder/visim/internal/metrics"
)

const backendLabel = "openai"

// Extractor is a remote extraction backend. It implements domain.Extractor.
type Extractor struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// Config holds the remote provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

// NewExtractor creates a remote extraction backend.
func NewExtractor(cfg *Config) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Extractor{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}
}

// ExtractOne implements domain.Extractor. The image travels as a base64 data
// URI, the input form CLIP-serving endpoints accept for image embeddings.
func (e *Extractor) ExtractOne(ctx context.Context, data []byte) (domain.Vector, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload: %w", domain.ErrPreprocess)
	}

	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	req := openai.EmbeddingRequest{
		Input:          []string{payload},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.ExtractionRequestsTotal.WithLabelValues(backendLabel, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(backendLabel, "api_error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		metrics.ExtractionRequestsTotal.WithLabelValues(backendLabel, "error").Inc()
		metrics.ExtractionErrorsTotal.WithLabelValues(backendLabel, "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrInference)
	}

	metrics.ExtractionRequestsTotal.WithLabelValues(backendLabel, "success").Inc()
	metrics.ExtractionDuration.WithLabelValues(backendLabel).Observe(duration.Seconds())

	return domain.Vector(resp.Data[0].Embedding), nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Extractor) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Dimensions returns the configured embedding length, 0 when the provider
// decides.
func (e *Extractor) Dimensions() int { return e.dimensions }

// parseAPIError extracts a human-readable error from the API response.
// Client-side 4xx errors other than rate limiting point at the payload and
// map to ErrPreprocess; everything else is an inference failure.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		wrap := classifyStatus(reqErr.HTTPStatusCode)
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, classifyStatus(apiErr.HTTPStatusCode))
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrInference)
}

func classifyStatus(status int) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return domain.ErrPreprocess
	}
	return domain.ErrInference
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
