package service

import (
	"context"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/rs/zerolog"
)

// ProviderRegistry implements ports.ProviderRegistry. Ranking comes from
// the store (priority, then observed success rate); eligibility filtering
// and preferred-provider promotion happen here.
type ProviderRegistry struct {
	providerRepo ports.ProviderRepository
	now          func() time.Time
	log          zerolog.Logger
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry(providerRepo ports.ProviderRepository, log zerolog.Logger) *ProviderRegistry {
	return &ProviderRegistry{
		providerRepo: providerRepo,
		now:          time.Now,
		log:          log,
	}
}

// Select returns the eligible providers for a service, best candidate
// first. A preferred provider is moved to the front only when it is
// itself eligible; an ineligible preference is silently ignored.
func (r *ProviderRegistry) Select(ctx context.Context, service domain.TransactionType, preferred string) ([]domain.Provider, error) {
	candidates, err := r.providerRepo.ListByService(ctx, service)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	now := r.now()
	eligible := make([]domain.Provider, 0, len(candidates))
	for _, p := range candidates {
		if p.EligibleFor(service, now) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, apperror.ErrProviderUnavailable()
	}

	if preferred != "" {
		for i, p := range eligible {
			if p.Name == preferred && i > 0 {
				promoted := append([]domain.Provider{p}, append(append([]domain.Provider{}, eligible[:i]...), eligible[i+1:]...)...)
				eligible = promoted
				break
			}
		}
	}

	return eligible, nil
}

// RecordOutcome bumps a provider's counters. Failures are logged and
// swallowed: a lost increment only skews future ranking and must never
// break the settlement path.
func (r *ProviderRegistry) RecordOutcome(ctx context.Context, provider string, success bool) {
	if err := r.providerRepo.RecordOutcome(ctx, provider, success); err != nil {
		r.log.Warn().Err(err).Str("provider", provider).Msg("failed to record provider outcome")
	}
}
