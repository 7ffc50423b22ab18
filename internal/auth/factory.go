package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"oauth-signin/internal/conf"
)

// Providers is the table of built-in client implementations. Configure
// registers the entries whose id has a configuration block.
var Providers = map[string]Constructor{
	GoogleProviderID: NewGoogleClient,
}

// Factory creates provider clients. It is configured once at startup and
// read-only afterwards.
type Factory struct {
	mu           sync.RWMutex
	logger       *slog.Logger
	constructors map[string]Constructor
	configs      map[string]*ProviderConfig
	configured   bool
}

// NewFactory creates an unconfigured factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		logger:       logger,
		constructors: make(map[string]Constructor),
		configs:      make(map[string]*ProviderConfig),
	}
}

// Register adds a client implementation. An id that is already registered
// keeps its first constructor; Register reports whether ctor was added.
func (f *Factory) Register(id string, ctor Constructor) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.register(id, ctor)
}

func (f *Factory) register(id string, ctor Constructor) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if _, ok := f.constructors[id]; ok {
		f.logger.Warn("oauth provider already registered", "provider", id)
		return false
	}
	f.constructors[id] = ctor
	return true
}

// Configure validates every provider block and registers the built-in
// implementations that are configured. It may be called only once.
func (f *Factory) Configure(ctx context.Context, providers map[string]conf.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.configured {
		return fmt.Errorf("%w: factory already configured", ErrConfiguration)
	}

	configs := make(map[string]*ProviderConfig, len(providers))
	for id, p := range providers {
		cfg, err := NewProviderConfig(ctx, id, p)
		if err != nil {
			return err
		}
		if _, dup := configs[cfg.ID]; dup {
			return fmt.Errorf("%w: provider %q configured twice", ErrConfiguration, cfg.ID)
		}
		configs[cfg.ID] = cfg
	}

	for id, ctor := range Providers {
		if _, ok := configs[id]; ok {
			f.register(id, ctor)
		}
	}

	f.configs = configs
	f.configured = true

	ids := make([]string, 0, len(configs))
	for id := range configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	f.logger.Info("oauth providers configured", "providers", ids)
	return nil
}

// CreateClient builds a client for providerID, resuming a flow when resume
// carries the values stored at its start.
func (f *Factory) CreateClient(providerID string, resume Resume) (Client, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.configured {
		return nil, fmt.Errorf("%w: factory used before Configure", ErrConfiguration)
	}

	id := strings.ToLower(strings.TrimSpace(providerID))
	ctor, ok := f.constructors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, id)
	}
	cfg, ok := f.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderConfigMissing, id)
	}
	return ctor(cfg, resume)
}

// PostSigninURL returns where a provider's successful sign-ins land.
func (f *Factory) PostSigninURL(providerID string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if cfg, ok := f.configs[strings.ToLower(strings.TrimSpace(providerID))]; ok {
		return cfg.PostSigninURL
	}
	return ""
}
