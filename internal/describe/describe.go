// Package describe generates natural-language descriptions for model columns.
//
// A Describer never fails: every error from the underlying text-generation
// backend is converted into one of the sentinel strings below so that callers
// can keep going and the failure stays visible in the output.
package describe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
)

// Sentinel descriptions substituted for failed generations.
const (
	SentinelUnavailable = "Description unavailable"
	SentinelAPIError    = "API Error"
	SentinelTimeout     = "Description generation timed out"
	SentinelFailed      = "Description generation failed"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 60 * time.Second

// ErrUnexpectedResponse is returned by generators when the backend answered
// with a body that does not contain generated text.
var ErrUnexpectedResponse = errors.New("unexpected response format")

// HTTPError is a non-2xx answer from a generation backend.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %d - %s", e.StatusCode, e.Body)
}

// Request is the column being described.
type Request struct {
	Column   string
	DataType string
	Context  string
}

// Describer produces a description for a column. Implementations must not
// fail; they return a sentinel string instead.
type Describer interface {
	Describe(ctx context.Context, req Request) string
}

// Func adapts a plain function to Describer.
type Func func(ctx context.Context, req Request) string

// Describe implements Describer.
func (f Func) Describe(ctx context.Context, req Request) string {
	return f(ctx, req)
}

// Generator is a raw text-generation backend.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each Generate call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client turns a Generator into a Describer.
type Client struct {
	gen     Generator
	timeout time.Duration
}

// New wraps gen.
func New(gen Generator, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{gen: gen, timeout: timeout}
}

// Describe builds the prompt, calls the generator and maps failures to sentinels.
func (c *Client) Describe(ctx context.Context, req Request) string {
	logger := ctxlog.Component(ctx, "describe")

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.gen.Generate(callCtx, BuildPrompt(req))
	if err == nil {
		text = strings.TrimSpace(text)
		if text != "" {
			return text
		}
		err = fmt.Errorf("%w: empty generated text", ErrUnexpectedResponse)
	}

	sentinel := Classify(err)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		sentinel = SentinelTimeout
	}
	logger.Warn("description generation failed", diag.AttrKey, req.Column, "backend", c.gen.Name(), "result", sentinel, "error", err)
	return sentinel
}

// Classify maps a generator error to its sentinel description.
func Classify(err error) string {
	var httpErr *HTTPError
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return SentinelTimeout
	case errors.As(err, &httpErr), errors.As(err, &urlErr):
		return SentinelAPIError
	case errors.Is(err, ErrUnexpectedResponse):
		return SentinelUnavailable
	default:
		return SentinelFailed
	}
}

// IsSentinel reports whether s is one of the failure sentinels.
func IsSentinel(s string) bool {
	switch s {
	case SentinelUnavailable, SentinelAPIError, SentinelTimeout, SentinelFailed:
		return true
	}
	return false
}
