package embed

import (
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/config"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/resilience"
)

// ProvidersFromConfig builds the provider list in resolution order: the
// configured primary, then the fallback addresses, then the hosted API when
// a credential is set.
func ProvidersFromConfig(cfg config.Config) []Provider {
	var providers []Provider
	for _, u := range cfg.LocalURLs() {
		providers = append(providers, NewLocal(u, cfg.ProviderTimeout))
	}
	if cfg.HostedEnabled() {
		var limiter *resilience.Limiter
		if cfg.HostedRPS > 0 {
			limiter = resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.HostedRPS, Burst: 1})
		}
		providers = append(providers, NewHosted(HostedOpts{
			URL:     cfg.HostedURL,
			Model:   cfg.HostedModel,
			APIKey:  cfg.HostedAPIKey,
			Timeout: cfg.HostedTimeout,
			Limiter: limiter,
		}))
	}
	return providers
}
