// Package config gathers the catalog pipeline's settings into one explicit
// struct. Nothing else in the module reads the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Index transports.
const (
	TransportREST = "rest"
	TransportGRPC = "grpc"
)

// Defaults.
const (
	DefaultIndexURL        = "http://localhost:6333"
	DefaultCollection      = "viki_docs"
	DefaultHostedURL       = "https://api.openai.com/v1/embeddings"
	DefaultHostedModel     = "text-embedding-3-small"
	DefaultRunLogPath      = "backups/ingest_per_item.log"
	DefaultEventsSubject   = "catalog.ingest.events"
	DefaultBatchSize       = 64
	DefaultMaxTextRunes    = 2000
	DefaultHostedRPS       = 4
	DefaultProviderTimeout = 20 * time.Second
	DefaultHostedTimeout   = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
)

// DefaultFallbackURLs are the local provider addresses tried after the
// configured primary.
var DefaultFallbackURLs = []string{
	"http://localhost:8001",
	"http://127.0.0.1:8001",
	"http://172.17.0.1:8001",
}

// Config is the full pipeline configuration.
type Config struct {
	IndexURL      string
	IndexGRPCAddr string
	Transport     string
	Collection    string

	EmbedURL        string
	FallbackURLs    []string
	ProviderTimeout time.Duration

	HostedAPIKey  string
	HostedURL     string
	HostedModel   string
	HostedTimeout time.Duration
	HostedRPS     float64

	WriteTimeout time.Duration
	BatchSize    int
	MaxTextRunes int
	Limit        int

	RunLogPath string
	CacheDir   string

	NATSURL       string
	EventsSubject string

	MetricsPort int
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		IndexURL:        DefaultIndexURL,
		Transport:       TransportREST,
		Collection:      DefaultCollection,
		FallbackURLs:    append([]string(nil), DefaultFallbackURLs...),
		ProviderTimeout: DefaultProviderTimeout,
		HostedURL:       DefaultHostedURL,
		HostedModel:     DefaultHostedModel,
		HostedTimeout:   DefaultHostedTimeout,
		HostedRPS:       DefaultHostedRPS,
		WriteTimeout:    DefaultWriteTimeout,
		BatchSize:       DefaultBatchSize,
		MaxTextRunes:    DefaultMaxTextRunes,
		RunLogPath:      DefaultRunLogPath,
		EventsSubject:   DefaultEventsSubject,
	}
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the shape of
// os.LookupEnv. Unset or blank variables keep their defaults.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}
	set := func(dst *string, key string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}

	set(&cfg.IndexURL, "QDRANT_URL")
	set(&cfg.IndexGRPCAddr, "QDRANT_GRPC_ADDR")
	set(&cfg.Transport, "INDEX_TRANSPORT")
	set(&cfg.Collection, "QDRANT_COLLECTION")
	set(&cfg.EmbedURL, "EMBED_SERVER_URL")
	if v := get("EMBED_FALLBACK_URLS"); v != "" {
		cfg.FallbackURLs = splitList(v)
	}

	cfg.HostedAPIKey = get("OPENAI_API_KEY")
	if cfg.HostedAPIKey == "" {
		cfg.HostedAPIKey = get("OPENAI_KEY")
	}
	set(&cfg.HostedURL, "OPENAI_EMBEDDINGS_URL")
	set(&cfg.HostedModel, "OPENAI_EMBEDDING_MODEL")

	// An unparsable limit means no limit.
	if n, err := strconv.Atoi(get("INGEST_LIMIT")); err == nil && n > 0 {
		cfg.Limit = n
	}
	set(&cfg.RunLogPath, "INGEST_LOG")
	set(&cfg.CacheDir, "EMBED_CACHE_DIR")
	set(&cfg.NATSURL, "NATS_URL")
	set(&cfg.EventsSubject, "INGEST_EVENTS_SUBJECT")

	if v := get("METRICS_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = n
	}

	cfg.Transport = strings.ToLower(cfg.Transport)
	return cfg, cfg.Validate()
}

// Validate reports settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportREST:
		if _, err := url.ParseRequestURI(c.IndexURL); err != nil {
			errs = append(errs, fmt.Errorf("index url %q: %w", c.IndexURL, err))
		}
	case TransportGRPC:
		if c.IndexGRPCAddr == "" {
			errs = append(errs, errors.New("grpc transport needs QDRANT_GRPC_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index transport %q", c.Transport))
	}
	if c.Collection == "" {
		errs = append(errs, errors.New("collection is empty"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size %d", c.BatchSize))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics port %d", c.MetricsPort))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// HostedEnabled reports whether the hosted embedding tier is configured.
// A blank credential skips the tier entirely.
func (c Config) HostedEnabled() bool { return c.HostedAPIKey != "" }

// LocalURLs returns the primary provider followed by the fallbacks, with
// duplicates and blanks removed and order kept.
func (c Config) LocalURLs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range append([]string{c.EmbedURL}, c.FallbackURLs...) {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
