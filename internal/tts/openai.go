package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIOption configures the OpenAI synthesizer.
type OpenAIOption func(*openAISynth)

// WithModel overrides the synthesis model (default tts-1).
func WithModel(model string) OpenAIOption {
	return func(s *openAISynth) { s.model = model }
}

// WithSpeed overrides playback speed.
func WithSpeed(speed float64) OpenAIOption {
	return func(s *openAISynth) { s.speed = speed }
}

// WithFormat overrides the response audio format (default mp3).
func WithFormat(format string) OpenAIOption {
	return func(s *openAISynth) { s.format = format }
}

// WithHTTPClient swaps the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(s *openAISynth) { s.httpClient = c }
}

type openAISynth struct {
	endpoint   string
	apiKey     string
	model      string
	speed      float64
	format     string
	httpClient *http.Client
}

// NewOpenAISynth returns a synthesizer backed by an OpenAI-compatible
// audio/speech endpoint.
func NewOpenAISynth(endpoint, apiKey string, opts ...OpenAIOption) (Synthesizer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("tts endpoint is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("tts api key is required")
	}
	s := &openAISynth{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      "tts-1",
		speed:      1.0,
		format:     "mp3",
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

func (s *openAISynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	payload := speechRequest{
		Model:          s.model,
		Input:          req.Text,
		Voice:          req.Voice,
		Speed:          s.speed,
		ResponseFormat: s.format,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &TerminalError{Err: fmt.Errorf("marshal tts request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &TerminalError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, classifyHTTPStatus(resp.StatusCode, string(b))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &RetryableError{Err: fmt.Errorf("read audio body: %w", err)}
	}
	if len(audio) == 0 {
		return Result{}, &RetryableError{Err: fmt.Errorf("tts service returned empty audio")}
	}
	return Result{Audio: audio}, nil
}
