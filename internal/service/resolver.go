package service

import (
	"context"
	"log"
	"sync"

	"github.com/katakuxiko/assistgw/internal/model"
)

type cacheKey struct {
	org      string
	provider string
}

// Resolver выбирает настройки провайдера для организации.
// Записи организаций кэшируются; кэш сбрасывается только снаружи через Invalidate.
type Resolver struct {
	store    OrgConfigStore
	defaults map[string]model.ProviderConfig

	mu    sync.RWMutex
	cache map[cacheKey]*model.ProviderConfig
}

// NewResolver copies defaults so later changes by the caller do not leak in.
func NewResolver(store OrgConfigStore, defaults map[string]model.ProviderConfig) *Resolver {
	own := make(map[string]model.ProviderConfig, len(defaults))
	for k, v := range defaults {
		own[k] = cloneConfig(v)
	}
	return &Resolver{
		store:    store,
		defaults: own,
		cache:    make(map[cacheKey]*model.ProviderConfig),
	}
}

// Resolve returns the organization's enabled record for provider, or the
// system default. Fails only when neither exists.
func (r *Resolver) Resolve(ctx context.Context, orgID, provider string) (model.ProviderConfig, error) {
	if orgCfg := r.lookup(ctx, orgID, provider); orgCfg != nil && orgCfg.Enabled {
		if !orgCfg.Valid() {
			log.Printf("[WARN] org %q provider %q: default model %q not in allow-list %v", orgID, provider, orgCfg.DefaultModel, orgCfg.AllowedModels)
		}
		return cloneConfig(*orgCfg), nil
	}
	def, ok := r.defaults[provider]
	if !ok || !def.Enabled {
		return model.ProviderConfig{}, model.NewConfigurationError("no usable configuration for provider %q (organization %q)", provider, orgID)
	}
	return cloneConfig(def), nil
}

// Invalidate drops every cached organization record.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = make(map[cacheKey]*model.ProviderConfig)
	r.mu.Unlock()
}

func (r *Resolver) lookup(ctx context.Context, orgID, provider string) *model.ProviderConfig {
	if r.store == nil || orgID == "" {
		return nil
	}
	key := cacheKey{org: orgID, provider: provider}

	r.mu.RLock()
	cfg, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cfg
	}

	cfg, err := r.store.GetProviderConfig(ctx, orgID, provider)
	if err != nil {
		// хранилище недоступно: работаем на системных настройках, в кэш не пишем
		log.Printf("[WARN] org config lookup %s/%s failed: %v", orgID, provider, err)
		return nil
	}

	r.mu.Lock()
	r.cache[key] = cfg
	r.mu.Unlock()
	return cfg
}

func cloneConfig(c model.ProviderConfig) model.ProviderConfig {
	c.AllowedModels = append([]string(nil), c.AllowedModels...)
	return c
}
