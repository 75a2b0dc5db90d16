package embed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LocalProvider calls a self-hosted embedding server: POST {base}/embed with
// {"input": text}.
type LocalProvider struct {
	endpoint string
	client   *http.Client
}

// NewLocal creates a LocalProvider for baseURL. A zero timeout means 20s.
func NewLocal(baseURL string, timeout time.Duration) *LocalProvider {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LocalProvider{
		endpoint: strings.TrimRight(baseURL, "/") + "/embed",
		client:   newHTTPClient(timeout),
	}
}

func (p *LocalProvider) Name() string { return "local:" + p.endpoint }

type localRequest struct {
	Input string `json:"input"`
}

// Embed implements Provider.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := postJSON(ctx, p.client, p.endpoint, localRequest{Input: text}, nil)
	if err != nil {
		return nil, fmt.Errorf("embed: %s: %w", p.endpoint, err)
	}
	return vec, nil
}
