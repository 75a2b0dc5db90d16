package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RESTStore talks to the index's HTTP API.
type RESTStore struct {
	base       string
	collection string
	client     *http.Client
}

// NewREST creates a RESTStore for baseURL. A zero timeout means 60s.
func NewREST(baseURL, collection string, timeout time.Duration) *RESTStore {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RESTStore{
		base:       strings.TrimRight(baseURL, "/"),
		collection: collection,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *RESTStore) collectionURL() string {
	return s.base + "/collections/" + url.PathEscape(s.collection)
}

type upsertBody struct {
	Points []Point `json:"points"`
}

// Upsert sends PUT /collections/{c}/points?wait=true. Any non-2xx answer is
// a *WriteError.
func (s *RESTStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	status, body, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", upsertBody{Points: points})
	if err != nil {
		return &WriteError{Count: len(points), Err: err}
	}
	if status < 200 || status > 299 {
		return &WriteError{Status: status, Body: body, Count: len(points)}
	}
	return nil
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionBody struct {
	Vectors vectorParams `json:"vectors"`
}

// EnsureCollection creates the collection with cosine distance unless it
// already exists.
func (s *RESTStore) EnsureCollection(ctx context.Context, dims int) error {
	status, _, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil)
	if err != nil {
		return fmt.Errorf("index: get collection %s: %w", s.collection, err)
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("index: get collection %s: status %d", s.collection, status)
	}

	status, body, err := s.do(ctx, http.MethodPut, s.collectionURL(),
		createCollectionBody{Vectors: vectorParams{Size: dims, Distance: "Cosine"}})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", s.collection, err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("index: create collection %s: status %d: %s", s.collection, status, body)
	}
	return nil
}

// do sends a JSON request and returns the status and a prefix of the body.
func (s *RESTStore) do(ctx context.Context, method, u string, payload any) (int, string, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, "", fmt.Errorf("marshal: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, string(bytes.TrimSpace(snippet)), nil
}
