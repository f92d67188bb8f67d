package service

import (
	"context"
	"errors"
	"testing"

	"github.com/katakuxiko/assistgw/internal/model"
)

func systemDefaults() map[string]model.ProviderConfig {
	return map[string]model.ProviderConfig{
		"openai": {Provider: "openai", Enabled: true, APIKey: "sys-key", AllowedModels: []string{"gpt-sys"}, DefaultModel: "gpt-sys"},
		"local":  {Provider: "local", Enabled: false, AllowedModels: []string{"llama"}, DefaultModel: "llama"},
	}
}

func TestResolver_OrgRecordWins(t *testing.T) {
	store := &mockOrgStore{configs: map[string]*model.ProviderConfig{
		"acme/openai": {Provider: "openai", Enabled: true, APIKey: "org-key", AllowedModels: []string{"gpt-a"}, DefaultModel: "gpt-a"},
	}}
	r := NewResolver(store, systemDefaults())

	cfg, err := r.Resolve(context.Background(), "acme", "openai")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.APIKey != "org-key" {
		t.Errorf("expected org record, got %+v", cfg)
	}
}

func TestResolver_DisabledOrgRecordFallsBackToSystem(t *testing.T) {
	store := &mockOrgStore{configs: map[string]*model.ProviderConfig{
		"acme/openai": {Provider: "openai", Enabled: false, APIKey: "org-key", AllowedModels: []string{"gpt-a"}, DefaultModel: "gpt-a"},
	}}
	cfg, err := NewResolver(store, systemDefaults()).Resolve(context.Background(), "acme", "openai")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cfg.APIKey != "sys-key" {
		t.Errorf("expected system default, got %+v", cfg)
	}
}

func TestResolver_NoUsableConfig(t *testing.T) {
	r := NewResolver(&mockOrgStore{}, systemDefaults())
	for _, provider := range []string{"local", "unknown"} {
		_, err := r.Resolve(context.Background(), "acme", provider)
		var cfgErr *model.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected configuration error, got %v", provider, err)
		}
	}
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	store := &mockOrgStore{configs: map[string]*model.ProviderConfig{
		"acme/openai": {Provider: "openai", Enabled: true, APIKey: "v1", AllowedModels: []string{"gpt-a"}, DefaultModel: "gpt-a"},
	}}
	r := NewResolver(store, systemDefaults())
	ctx := context.Background()

	r.Resolve(ctx, "acme", "openai")
	store.configs["acme/openai"] = &model.ProviderConfig{Provider: "openai", Enabled: true, APIKey: "v2", AllowedModels: []string{"gpt-a"}, DefaultModel: "gpt-a"}

	cfg, _ := r.Resolve(ctx, "acme", "openai")
	if cfg.APIKey != "v1" || store.lookups != 1 {
		t.Fatalf("expected cached record, got %q after %d lookups", cfg.APIKey, store.lookups)
	}

	r.Invalidate()
	cfg, _ = r.Resolve(ctx, "acme", "openai")
	if cfg.APIKey != "v2" {
		t.Errorf("expected fresh record after invalidate, got %q", cfg.APIKey)
	}
}

func TestResolver_StoreErrorIsNotCached(t *testing.T) {
	store := &mockOrgStore{err: errors.New("db down")}
	r := NewResolver(store, systemDefaults())
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "acme", "openai")
	if err != nil || cfg.APIKey != "sys-key" {
		t.Fatalf("expected system default on store error, got %+v, %v", cfg, err)
	}
	r.Resolve(ctx, "acme", "openai")
	if store.lookups != 2 {
		t.Errorf("store errors must not be cached, got %d lookups", store.lookups)
	}
}

func TestResolver_ReturnsCopies(t *testing.T) {
	defaults := systemDefaults()
	r := NewResolver(nil, defaults)
	defaults["openai"].AllowedModels[0] = "mutated"

	cfg, _ := r.Resolve(context.Background(), "", "openai")
	cfg.AllowedModels[0] = "changed"

	again, _ := r.Resolve(context.Background(), "", "openai")
	if again.AllowedModels[0] != "gpt-sys" {
		t.Errorf("resolver state leaked: %v", again.AllowedModels)
	}
}
