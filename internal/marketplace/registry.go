package marketplace

import (
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// Registry holds the providers of every enabled platform
type Registry struct {
	providers map[domain.Platform]Provider
}

// NewRegistry builds providers for each platform with credentials configured.
// Platforms without credentials are skipped and logged.
func NewRegistry(cfg *config.Config, opts Options) (*Registry, error) {
	opts = opts.withDefaults()
	r := &Registry{providers: make(map[domain.Platform]Provider)}

	builders := []struct {
		platform domain.Platform
		build    func() (Provider, error)
	}{
		{domain.PlatformShopee, func() (Provider, error) { return NewShopee(cfg.Shopee, "", opts) }},
		{domain.PlatformTikTok, func() (Provider, error) { return NewTikTok(cfg.TikTok, "", opts) }},
		{domain.PlatformFacebook, func() (Provider, error) { return NewFacebook(cfg.Facebook, "", opts) }},
	}

	for _, b := range builders {
		p, err := b.build()
		var disabled *errors.ErrPlatformDisabled
		if stderrors.As(err, &disabled) {
			opts.Logger.Info("Marketplace integration disabled: credentials not set", zap.String("platform", string(b.platform)))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", b.platform, err)
		}
		r.providers[b.platform] = p
	}
	return r, nil
}

// NewRegistryWith registers the given providers
func NewRegistryWith(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Platform]Provider)}
	for _, p := range providers {
		r.providers[p.Platform()] = p
	}
	return r
}

// Get returns the provider for platform
func (r *Registry) Get(platform domain.Platform) (Provider, error) {
	p, ok := r.providers[platform]
	if !ok {
		return nil, &errors.ErrPlatformDisabled{Platform: string(platform)}
	}
	return p, nil
}

// Platforms lists enabled platforms in display order
func (r *Registry) Platforms() []domain.Platform {
	var out []domain.Platform
	for _, p := range domain.Platforms {
		if _, ok := r.providers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
