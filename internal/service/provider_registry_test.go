package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupRegistry(t *testing.T) (*ProviderRegistry, *mocks.MockProviderRepository, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockProviderRepository(ctrl)
	return NewProviderRegistry(repo, zerolog.Nop()), repo, ctrl
}

func activeProvider(name string, priority int, services ...domain.TransactionType) domain.Provider {
	return domain.Provider{
		Name:              name,
		SupportedServices: services,
		Status:            domain.ProviderActive,
		Priority:          priority,
	}
}

func TestProviderRegistry_Select_FiltersIneligible(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	now := time.Now()
	windowStart := now.Add(-time.Hour)
	windowEnd := now.Add(time.Hour)

	inMaintenance := activeProvider("maintained", 1, domain.TypeAirtimeRecharge)
	inMaintenance.MaintenanceStart = &windowStart
	inMaintenance.MaintenanceEnd = &windowEnd

	inactive := activeProvider("inactive", 2, domain.TypeAirtimeRecharge)
	inactive.Status = domain.ProviderInactive

	repo.EXPECT().ListByService(ctx, domain.TypeAirtimeRecharge).Return([]domain.Provider{
		inMaintenance,
		inactive,
		activeProvider("vtpass", 3, domain.TypeAirtimeRecharge),
	}, nil)

	selected, err := reg.Select(ctx, domain.TypeAirtimeRecharge, "")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "vtpass", selected[0].Name)
}

func TestProviderRegistry_Select_DegradedStillEligible(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	degraded := activeProvider("shaky", 1, domain.TypeDataRecharge)
	degraded.Status = domain.ProviderDegraded

	repo.EXPECT().ListByService(ctx, domain.TypeDataRecharge).
		Return([]domain.Provider{degraded}, nil)

	selected, err := reg.Select(ctx, domain.TypeDataRecharge, "")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "shaky", selected[0].Name)
}

func TestProviderRegistry_Select_PreferredPromoted(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo.EXPECT().ListByService(ctx, domain.TypeCableTV).Return([]domain.Provider{
		activeProvider("first", 1, domain.TypeCableTV),
		activeProvider("second", 2, domain.TypeCableTV),
		activeProvider("third", 3, domain.TypeCableTV),
	}, nil)

	selected, err := reg.Select(ctx, domain.TypeCableTV, "second")
	require.NoError(t, err)
	require.Len(t, selected, 3)
	assert.Equal(t, "second", selected[0].Name)
	assert.Equal(t, "first", selected[1].Name)
	assert.Equal(t, "third", selected[2].Name)
}

func TestProviderRegistry_Select_IneligiblePreferredIgnored(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo.EXPECT().ListByService(ctx, domain.TypeCableTV).Return([]domain.Provider{
		activeProvider("first", 1, domain.TypeCableTV),
	}, nil)

	selected, err := reg.Select(ctx, domain.TypeCableTV, "missing")
	require.NoError(t, err)
	require.Len(t, selected, 1)
	assert.Equal(t, "first", selected[0].Name)
}

func TestProviderRegistry_Select_NoneEligible(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo.EXPECT().ListByService(ctx, domain.TypeRRRPayment).Return(nil, nil)

	_, err := reg.Select(ctx, domain.TypeRRRPayment, "")
	assertAppError(t, err, "PRV_001")
}

func TestProviderRegistry_RecordOutcome_SwallowsErrors(t *testing.T) {
	reg, repo, ctrl := setupRegistry(t)
	defer ctrl.Finish()

	ctx := context.Background()
	repo.EXPECT().RecordOutcome(ctx, "vtpass", true).Return(errors.New("db down"))

	// Must not panic or surface the failure
	reg.RecordOutcome(ctx, "vtpass", true)
}
