package executor

import (
	"context"
	"sync"

	"github.com/kevanbtc/apexarb/internal/domain"
)

// StaticFlashloans implements domain.FlashloanSource from a configured
// provider list. Liquidity and availability can be refreshed at runtime by an
// external poller via Update.
type StaticFlashloans struct {
	mu        sync.RWMutex
	providers []domain.FlashloanProvider
}

// NewStaticFlashloans creates the source with the initial provider set.
func NewStaticFlashloans(providers []domain.FlashloanProvider) *StaticFlashloans {
	return &StaticFlashloans{providers: append([]domain.FlashloanProvider(nil), providers...)}
}

// Providers implements domain.FlashloanSource.
func (s *StaticFlashloans) Providers(context.Context) ([]domain.FlashloanProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.FlashloanProvider(nil), s.providers...), nil
}

// Update replaces the provider set.
func (s *StaticFlashloans) Update(providers []domain.FlashloanProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append([]domain.FlashloanProvider(nil), providers...)
}

// Compile-time interface check.
var _ domain.FlashloanSource = (*StaticFlashloans)(nil)
