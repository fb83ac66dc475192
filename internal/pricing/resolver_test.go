package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
)

type stubCatalog struct {
	services map[uuid.UUID]models.Service
	err      error
}

func (s *stubCatalog) ServicesByIDs(_ context.Context, _ []uuid.UUID) (map[uuid.UUID]models.Service, error) {
	return s.services, s.err
}

func defaults() config.LoyaltyConfig {
	return config.LoyaltyConfig{
		RedemptionCapPercent:     50,
		DefaultCommissionPercent: 5,
		DefaultDiscountPercent:   0,
	}
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeItemized, ModeFor(enums.PartnerTypeServiceCenter, true))
	assert.Equal(t, ModeItemized, ModeFor(enums.PartnerTypeServiceCenter, false))
	assert.Equal(t, ModeFlatAmount, ModeFor(enums.PartnerTypeAutoShop, true))
	assert.Equal(t, ModeFlatAmount, ModeFor(enums.PartnerTypeAutoShop, false))
	assert.Equal(t, ModeItemized, ModeFor(enums.PartnerTypeCarWash, true))
	assert.Equal(t, ModeFlatAmount, ModeFor(enums.PartnerTypeCarWash, false))
}

func TestQuoteItemized_MixedRateTypes(t *testing.T) {
	svcA := models.Service{
		ID:              uuid.New(),
		Name:            "Engine diagnostics",
		CommissionType:  enums.RateTypeFixed,
		CommissionValue: 2000,
		CashbackType:    enums.RateTypeFixed,
		CashbackValue:   500,
	}
	svcB := models.Service{
		ID:              uuid.New(),
		Name:            "Oil change",
		CommissionType:  enums.RateTypePercent,
		CommissionValue: 20,
		CashbackType:    enums.RateTypePercent,
		CashbackValue:   25,
	}
	resolver, err := NewResolver(&stubCatalog{services: map[uuid.UUID]models.Service{
		svcA.ID: svcA,
		svcB.ID: svcB,
	}}, defaults())
	require.NoError(t, err)

	quote, err := resolver.QuoteItemized(context.Background(), []ServiceLineInput{
		{ServiceID: svcA.ID, Price: 8000},
		{ServiceID: svcB.ID, Price: 5000},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(13000), quote.TotalCost)
	assert.Equal(t, int64(3000), quote.TotalCommission)
	assert.Equal(t, int64(750), quote.TotalCashback)
	require.Len(t, quote.Lines, 2)
	assert.Equal(t, "Engine diagnostics", quote.Lines[0].ServiceName)
	assert.Equal(t, int64(2000), quote.Lines[0].Commission)
	assert.Equal(t, int64(500), quote.Lines[0].Cashback)
	// percent cashback is a share of the commission, not of the price
	assert.Equal(t, int64(1000), quote.Lines[1].Commission)
	assert.Equal(t, int64(250), quote.Lines[1].Cashback)
}

func TestQuoteItemized_SkipsUnknownServices(t *testing.T) {
	known := models.Service{
		ID:              uuid.New(),
		Name:            "Tire rotation",
		CommissionType:  enums.RateTypeFixed,
		CommissionValue: 300,
		CashbackType:    enums.RateTypeFixed,
		CashbackValue:   100,
	}
	resolver, err := NewResolver(&stubCatalog{services: map[uuid.UUID]models.Service{
		known.ID: known,
	}}, defaults())
	require.NoError(t, err)

	quote, err := resolver.QuoteItemized(context.Background(), []ServiceLineInput{
		{ServiceID: known.ID, Price: 2500},
		{ServiceID: uuid.New(), Price: 9999},
	})
	require.NoError(t, err)

	require.Len(t, quote.Lines, 1)
	assert.Equal(t, int64(2500), quote.TotalCost)
	assert.Equal(t, int64(300), quote.TotalCommission)
}

func TestQuoteItemized_AllUnknownRejected(t *testing.T) {
	resolver, err := NewResolver(&stubCatalog{services: map[uuid.UUID]models.Service{}}, defaults())
	require.NoError(t, err)

	_, err = resolver.QuoteItemized(context.Background(), []ServiceLineInput{
		{ServiceID: uuid.New(), Price: 1000},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestQuoteItemized_EmptyInput(t *testing.T) {
	resolver, err := NewResolver(&stubCatalog{}, defaults())
	require.NoError(t, err)

	_, err = resolver.QuoteItemized(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestQuoteFlatAmount_PartnerRates(t *testing.T) {
	commission := 5.0
	discount := 10.0
	partner := &models.Partner{
		ID:                uuid.New(),
		Type:              enums.PartnerTypeAutoShop,
		CommissionPercent: &commission,
		DiscountPercent:   &discount,
	}

	resolver, err := NewResolver(&stubCatalog{}, defaults())
	require.NoError(t, err)

	quote, err := resolver.QuoteFlatAmount(partner, 10000, "Purchase", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), quote.TotalCost)
	assert.Equal(t, int64(500), quote.TotalCommission)
	assert.Equal(t, int64(1000), quote.TotalCashback)
	require.Len(t, quote.Lines, 1)
	assert.Equal(t, "Purchase", quote.Lines[0].ServiceName)
}

func TestQuoteFlatAmount_FallsBackToDefaults(t *testing.T) {
	partner := &models.Partner{ID: uuid.New(), Type: enums.PartnerTypeCarWash}

	resolver, err := NewResolver(&stubCatalog{}, defaults())
	require.NoError(t, err)

	quote, err := resolver.QuoteFlatAmount(partner, 2000, "Car wash", nil)
	require.NoError(t, err)

	// default 5% commission, 0% discount
	assert.Equal(t, int64(100), quote.TotalCommission)
	assert.Equal(t, int64(0), quote.TotalCashback)
}

func TestQuoteFlatAmount_RoundsHalfUp(t *testing.T) {
	commission := 5.0
	partner := &models.Partner{ID: uuid.New(), Type: enums.PartnerTypeAutoShop, CommissionPercent: &commission}

	resolver, err := NewResolver(&stubCatalog{}, defaults())
	require.NoError(t, err)

	// 5% of 1010 = 50.5, rounds up to 51
	quote, err := resolver.QuoteFlatAmount(partner, 1010, "Purchase", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(51), quote.TotalCommission)
}

func TestQuoteFlatAmount_RejectsNonPositiveAmount(t *testing.T) {
	resolver, err := NewResolver(&stubCatalog{}, defaults())
	require.NoError(t, err)

	_, err = resolver.QuoteFlatAmount(&models.Partner{}, 0, "Purchase", nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
