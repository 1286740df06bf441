// Package provider holds the kind-keyed registry of AI backend adapters.
// Each adapter subpackage registers itself from init(); the router only ever
// sees llm.Provider and never names a vendor.
package provider

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/llm"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/models"
)

// DefaultMaxTokens bounds completions for adapters whose API requires a limit.
const DefaultMaxTokens = 4096

// AdapterInfo describes a registered adapter for operator discovery.
type AdapterInfo struct {
	Kind        models.ProviderKind `json:"kind"`
	DisplayName string              `json:"display_name"`
	Description string              `json:"description"`
	Local       bool                `json:"local"` // runs inside the deployment boundary
}

// Factory builds an adapter from a stored config and its decrypted credential.
// apiKey is empty for local providers.
type Factory func(cfg *models.ProviderConfig, apiKey string, logger *zap.Logger) (llm.Provider, error)

// Registration contains info + factory for one backend kind.
type Registration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.ProviderKind]Registration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Kind] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by kind.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// GetFactory returns the factory for a backend kind.
// Returns nil if kind is not registered.
func GetFactory(kind models.ProviderKind) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[kind]; ok {
		return reg.Factory
	}
	return nil
}
