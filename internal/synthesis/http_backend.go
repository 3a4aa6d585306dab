package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/echoform/echoform-backend/internal/domain"
	"github.com/echoform/echoform-backend/internal/pkg/httpx"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
)

// httpBackend drives a TTS engine over its HTTP job API:
// POST /v1/synthesize, GET /v1/jobs/{h}, GET /v1/jobs/{h}/result,
// POST /v1/jobs/{h}/cancel.
type httpBackend struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPBackend(log *logger.Logger) (Backend, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := strings.TrimSpace(os.Getenv("TTS_ENGINE_URL"))
	if baseURL == "" {
		return nil, fmt.Errorf("missing TTS_ENGINE_URL")
	}

	return &httpBackend{
		log:     log.With("service", "TTSBackend"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(os.Getenv("TTS_ENGINE_API_KEY")),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type submitRequest struct {
	Text           string  `json:"text"`
	SpeakerRef     string  `json:"speaker_ref"`
	Format         string  `json:"format"`
	SampleRate     int     `json:"sample_rate"`
	Speed          float64 `json:"speed"`
	Pitch          float64 `json:"pitch"`
	Volume         float64 `json:"volume"`
	Language       string  `json:"language,omitempty"`
	WithTimestamps bool    `json:"with_timestamps"`
}

type submitResponse struct {
	Handle string `json:"handle"`
}

func (b *httpBackend) Submit(ctx context.Context, req Request) (Handle, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", &BackendError{Class: ErrorClassPermanent, Message: "empty text"}
	}
	if strings.TrimSpace(req.SpeakerRef) == "" {
		return "", &BackendError{Class: ErrorClassPermanent, Message: "missing speaker ref"}
	}

	payload := submitRequest{
		Text:           req.Text,
		SpeakerRef:     req.SpeakerRef,
		Format:         req.Config.Format,
		SampleRate:     req.Config.SampleRate,
		Speed:          req.Config.Speed,
		Pitch:          req.Config.Pitch,
		Volume:         req.Config.Volume,
		Language:       req.Config.Language,
		WithTimestamps: req.Config.WithTimestamps,
	}
	var resp submitResponse
	if err := b.do(ctx, http.MethodPost, "/v1/synthesize", payload, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Handle) == "" {
		return "", &BackendError{Class: ErrorClassTransient, Message: "engine returned empty handle"}
	}
	return Handle(resp.Handle), nil
}

type pollResponse struct {
	Status                string                 `json:"status"`
	Progress              float64                `json:"progress"`
	PartialWordTimestamps []domain.WordTimestamp `json:"partial_word_timestamps,omitempty"`
	Error                 string                 `json:"error,omitempty"`
}

func (b *httpBackend) Poll(ctx context.Context, handle Handle) (Progress, error) {
	var resp pollResponse
	if err := b.do(ctx, http.MethodGet, "/v1/jobs/"+string(handle), nil, &resp); err != nil {
		return Progress{}, err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "failed":
		return Progress{}, &BackendError{
			Class:   classifyEngineFailure(resp.Error),
			Message: resp.Error,
		}
	case "completed":
		return Progress{Fraction: 1, Done: true, PartialWordTimestamps: resp.PartialWordTimestamps}, nil
	default:
		fraction := resp.Progress
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		return Progress{Fraction: fraction, PartialWordTimestamps: resp.PartialWordTimestamps}, nil
	}
}

type resultResponse struct {
	AudioBase64        string                     `json:"audio_base64"`
	MimeType           string                     `json:"mime_type"`
	WordTimestamps     []domain.WordTimestamp     `json:"word_timestamps,omitempty"`
	SyllableTimestamps []domain.SyllableTimestamp `json:"syllable_timestamps,omitempty"`
}

func (b *httpBackend) FetchResult(ctx context.Context, handle Handle) (Result, error) {
	var resp resultResponse
	if err := b.do(ctx, http.MethodGet, "/v1/jobs/"+string(handle)+"/result", nil, &resp); err != nil {
		return Result{}, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return Result{}, &BackendError{
			Class:   ErrorClassTransient,
			Message: "engine returned undecodable audio",
			Cause:   err,
		}
	}
	if len(audio) == 0 {
		return Result{}, &BackendError{Class: ErrorClassTransient, Message: "engine returned empty audio"}
	}
	return Result{
		Audio:              audio,
		MimeType:           resp.MimeType,
		WordTimestamps:     resp.WordTimestamps,
		SyllableTimestamps: resp.SyllableTimestamps,
	}, nil
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (b *httpBackend) Cancel(ctx context.Context, handle Handle) (bool, error) {
	var resp cancelResponse
	if err := b.do(ctx, http.MethodPost, "/v1/jobs/"+string(handle)+"/cancel", nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

func (b *httpBackend) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &BackendError{Class: ErrorClassPermanent, Message: "encode request failed", Cause: err}
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return &BackendError{Class: ErrorClassPermanent, Message: "build request failed", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return &BackendError{Class: ErrorClassTransient, Message: "read response failed", Cause: readErr}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyHTTPStatus(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &BackendError{
			Class:   ErrorClassTransient,
			Message: fmt.Sprintf("decode response failed: raw=%q", truncate(raw)),
			Cause:   err,
		}
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &BackendError{Class: ErrorClassTransient, Message: "engine request timed out", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &BackendError{Class: ErrorClassTransient, Message: "engine request timed out", Cause: err}
	}
	return &BackendError{Class: ErrorClassTransient, Message: "engine unreachable", Cause: err}
}

func classifyHTTPStatus(status int, raw []byte) error {
	// A non-retryable status means the request itself is unacceptable.
	class := ErrorClassTransient
	if !httpx.StatusRetryable(status) {
		class = ErrorClassPermanent
	}
	return &BackendError{
		Class:      class,
		StatusCode: status,
		Message:    fmt.Sprintf("engine http status=%d body=%q", status, truncate(raw)),
	}
}

// classifyEngineFailure maps an engine-reported failure string onto a retry
// class. Engines report unsupported configs with stable prefixes.
func classifyEngineFailure(message string) ErrorClass {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "unsupported"),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "not supported"):
		return ErrorClassPermanent
	default:
		return ErrorClassTransient
	}
}

func truncate(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
