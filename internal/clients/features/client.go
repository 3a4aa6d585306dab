// Package features talks to the acoustic feature service: text embeddings
// for near-duplicate lookup and voice feature extraction for uploaded
// samples.
package features

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/echoform/echoform-backend/internal/pkg/httpx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

// VoiceFeatures is the extraction result for one voice sample.
type VoiceFeatures struct {
	Vector       []float32
	QualityScore float64
	DurationSec  float64
	SampleRate   int
}

type Client interface {
	// EmbedText returns one embedding per input, index-aligned.
	EmbedText(ctx context.Context, inputs []string) ([][]float32, error)

	// ExtractVoice reads the sample from blob storage by key and returns
	// its speaker embedding plus measured quality.
	ExtractVoice(ctx context.Context, storageKey string) (VoiceFeatures, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("FEATURES_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing FEATURES_URL")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	maxRetries := 2
	if raw := strings.TrimSpace(os.Getenv("FEATURES_MAX_RETRIES")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &client{
		log:     log.With("service", "FeaturesClient"),
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(os.Getenv("FEATURES_API_KEY")),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries: maxRetries,
	}, nil
}

type featuresHTTPError struct {
	StatusCode int
	Body       string
}

func (e *featuresHTTPError) Error() string {
	return fmt.Sprintf("features http error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *featuresHTTPError) HTTPStatusCode() int { return e.StatusCode }

type embedTextRequest struct {
	Input []string `json:"input"`
}

type embedTextResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) EmbedText(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var resp embedTextResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings/text", embedTextRequest{Input: clean}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(clean) {
		return nil, fmt.Errorf("features embeddings count mismatch: requested=%d returned=%d", len(clean), len(resp.Data))
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("features embeddings index out of range: index=%d count=%d", d.Index, len(out))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("features embeddings missing index=%d", i)
		}
	}
	return out, nil
}

type extractVoiceRequest struct {
	StorageKey string `json:"storage_key"`
}

type extractVoiceResponse struct {
	Embedding    []float64 `json:"embedding"`
	QualityScore float64   `json:"quality_score"`
	DurationSec  float64   `json:"duration_sec"`
	SampleRate   int       `json:"sample_rate"`
}

func (c *client) ExtractVoice(ctx context.Context, storageKey string) (VoiceFeatures, error) {
	key := strings.TrimSpace(storageKey)
	if key == "" {
		return VoiceFeatures{}, fmt.Errorf("storage key required")
	}

	var resp extractVoiceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/voice/features", extractVoiceRequest{StorageKey: key}, &resp); err != nil {
		return VoiceFeatures{}, err
	}
	if len(resp.Embedding) == 0 {
		return VoiceFeatures{}, fmt.Errorf("features extraction returned empty embedding: key=%s", key)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, f := range resp.Embedding {
		vec[i] = float32(f)
	}
	return VoiceFeatures{
		Vector:       vec,
		QualityScore: resp.QualityScore,
		DurationSec:  resp.DurationSec,
		SampleRate:   resp.SampleRate,
	}, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &featuresHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("features decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.Retryable(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.RetryAfter(resp, backoff, 10*time.Second)
		sleepFor = httpx.Jitter(sleepFor)

		c.log.Warn("Features request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
