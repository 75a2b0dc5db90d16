// Package embed resolves text to a vector through an ordered chain of
// embedding providers.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Provider turns text into a vector.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	// errNoVector is returned when a response carries no usable vector.
	errNoVector = errors.New("response has no embedding")
	// errMalformed marks a response body that could not be decoded.
	errMalformed = errors.New("malformed response")
)

// embeddingResponse covers both the flat {"embedding": [...]} shape and the
// list-wrapped {"data": [{"embedding": [...]}]} shape.
type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Data      []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func decodeEmbedding(r io.Reader) ([]float32, error) {
	var resp embeddingResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(resp.Embedding) > 0 {
		return resp.Embedding, nil
	}
	if len(resp.Data) > 0 && len(resp.Data[0].Embedding) > 0 {
		return resp.Data[0].Embedding, nil
	}
	return nil, errNoVector
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// providerFault reports whether err means the provider itself is unhealthy.
// Transport failures, 5xx and 429 count; a rejected input or an unusable
// body is an answer about one text and does not.
func providerFault(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= http.StatusInternalServerError || se.Status == http.StatusTooManyRequests
	}
	return !errors.Is(err, errMalformed) && !errors.Is(err, errNoVector)
}

// postJSON sends body to url and decodes the vector from the response.
func postJSON(ctx context.Context, client *http.Client, url string, body any, header http.Header) ([]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return decodeEmbedding(resp.Body)
}
