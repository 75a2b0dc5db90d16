package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/resilience"
)

// HostedOpts configures a HostedProvider.
type HostedOpts struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
	// Limiter throttles requests; nil means unthrottled.
	Limiter *resilience.Limiter
}

// HostedProvider calls a hosted embeddings API with bearer auth.
type HostedProvider struct {
	opts   HostedOpts
	client *http.Client
}

// NewHosted creates a HostedProvider. Blank URL and model fall back to the
// OpenAI embeddings endpoint and text-embedding-3-small.
func NewHosted(opts HostedOpts) *HostedProvider {
	if opts.URL == "" {
		opts.URL = "https://api.openai.com/v1/embeddings"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &HostedProvider{opts: opts, client: newHTTPClient(opts.Timeout)}
}

func (p *HostedProvider) Name() string { return "hosted:" + p.opts.Model }

type hostedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// Embed implements Provider. The first entry of the response data is used.
func (p *HostedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.opts.APIKey)
	var vec []float32
	post := func(ctx context.Context) error {
		v, err := postJSON(ctx, p.client, p.opts.URL, hostedRequest{Model: p.opts.Model, Input: text}, header)
		vec = v
		return err
	}
	var err error
	if p.opts.Limiter != nil {
		err = p.opts.Limiter.CallWait(ctx, post)
	} else {
		err = post(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("embed: hosted %s: %w", p.opts.Model, err)
	}
	return vec, nil
}
