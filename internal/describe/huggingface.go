package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultHuggingFaceModel is the text2text model used when none is configured.
const DefaultHuggingFaceModel = "google/flan-t5-base"

const huggingFaceBaseURL = "https://api-inference.huggingface.co/models/"

// HuggingFace calls the Hugging Face Inference API.
type HuggingFace struct {
	http     *http.Client
	apiKey   string
	model    string
	endpoint string
}

// HuggingFaceOption customises a HuggingFace generator.
type HuggingFaceOption func(*HuggingFace)

// WithEndpoint overrides the inference URL.
func WithEndpoint(endpoint string) HuggingFaceOption {
	return func(h *HuggingFace) { h.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HuggingFaceOption {
	return func(h *HuggingFace) { h.http = c }
}

// NewHuggingFace creates a generator authenticated with apiKey.
func NewHuggingFace(apiKey, model string, opts ...HuggingFaceOption) *HuggingFace {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	h := &HuggingFace{
		http:     &http.Client{Timeout: 2 * DefaultTimeout},
		apiKey:   apiKey,
		model:    model,
		endpoint: huggingFaceBaseURL + model,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HuggingFace) Name() string { return "HuggingFace:" + h.model }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
	Options    hfOptions    `json:"options"`
}

type hfParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfGeneration struct {
	GeneratedText *string `json:"generated_text"`
}

// Generate posts the prompt and returns the first generated_text.
func (h *HuggingFace) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: 100, Temperature: 0.7},
		Options:    hfOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var out []hfGeneration
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedResponse, truncate(string(raw), 256))
	}
	if len(out) == 0 || out[0].GeneratedText == nil {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedResponse, truncate(string(raw), 256))
	}
	return strings.TrimSpace(*out[0].GeneratedText), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Generator = (*HuggingFace)(nil)
