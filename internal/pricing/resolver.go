package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
)

// Mode is the pricing computation path for a visit, resolved once from the
// partner type and the input shape.
type Mode int

const (
	// ModeItemized prices each supplied catalog service individually.
	ModeItemized Mode = iota
	// ModeFlatAmount prices a single caller-supplied sale amount using the
	// partner's percentage rates.
	ModeFlatAmount
)

// ModeFor selects the pricing mode. Service centers always itemize, auto
// shops always use the flat amount, car washes itemize only when a service
// list was supplied.
func ModeFor(partnerType enums.PartnerType, hasServices bool) Mode {
	switch partnerType {
	case enums.PartnerTypeAutoShop:
		return ModeFlatAmount
	case enums.PartnerTypeCarWash:
		if !hasServices {
			return ModeFlatAmount
		}
	}
	return ModeItemized
}

// ServiceLineInput is one requested catalog service with its charged price.
type ServiceLineInput struct {
	ServiceID uuid.UUID
	Price     int64
	Details   *string
}

// Line is one priced line of a quote with its commission/cashback split.
type Line struct {
	ServiceName string
	Price       int64
	Commission  int64
	Cashback    int64
	Details     *string
}

// Quote is the result of pricing a visit: who owes what.
type Quote struct {
	TotalCost       int64
	TotalCommission int64
	TotalCashback   int64
	Lines           []Line
}

// Catalog is the read-only service lookup the itemized path needs.
type Catalog interface {
	ServicesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error)
}

// Resolver computes commission and cashback for a visit. It performs no
// writes; the only I/O is the catalog lookup in itemized mode.
type Resolver struct {
	catalog  Catalog
	defaults config.LoyaltyConfig
}

// NewResolver builds a pricing resolver.
func NewResolver(catalog Catalog, defaults config.LoyaltyConfig) (*Resolver, error) {
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "service catalog required")
	}
	return &Resolver{catalog: catalog, defaults: defaults}, nil
}

// QuoteItemized prices each supplied service line against the catalog.
// Commission derives from the price, cashback derives from the commission.
// Lines referencing an unknown service id are skipped, not rejected: the
// partner app may hold a stale catalog.
func (r *Resolver) QuoteItemized(ctx context.Context, lines []ServiceLineInput) (*Quote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "services are required")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ServiceID)
	}
	catalog, err := r.catalog.ServicesByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service catalog")
	}

	quote := &Quote{}
	for _, line := range lines {
		svc, ok := catalog[line.ServiceID]
		if !ok {
			continue
		}

		commission := svc.CommissionValue
		if svc.CommissionType == enums.RateTypePercent {
			commission = percentOf(line.Price, float64(svc.CommissionValue))
		}
		cashback := svc.CashbackValue
		if svc.CashbackType == enums.RateTypePercent {
			cashback = percentOf(commission, float64(svc.CashbackValue))
		}

		quote.TotalCost += line.Price
		quote.TotalCommission += commission
		quote.TotalCashback += cashback
		quote.Lines = append(quote.Lines, Line{
			ServiceName: svc.Name,
			Price:       line.Price,
			Commission:  commission,
			Cashback:    cashback,
			Details:     line.Details,
		})
	}

	if len(quote.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no resolvable services supplied")
	}
	return quote, nil
}

// QuoteFlatAmount prices a single sale amount with the partner's percentage
// rates. The cashback here is semantically a customer discount; it flows
// through the ledger identically to earned cashback.
func (r *Resolver) QuoteFlatAmount(partner *models.Partner, totalAmount int64, lineName string, details *string) (*Quote, error) {
	if partner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner is required")
	}
	if totalAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount must be positive")
	}

	commissionPct := r.defaults.DefaultCommissionPercent
	if partner.CommissionPercent != nil {
		commissionPct = *partner.CommissionPercent
	}
	discountPct := r.defaults.DefaultDiscountPercent
	if partner.DiscountPercent != nil {
		discountPct = *partner.DiscountPercent
	}

	commission := percentOf(totalAmount, commissionPct)
	cashback := percentOf(totalAmount, discountPct)

	return &Quote{
		TotalCost:       totalAmount,
		TotalCommission: commission,
		TotalCashback:   cashback,
		Lines: []Line{{
			ServiceName: lineName,
			Price:       totalAmount,
			Commission:  commission,
			Cashback:    cashback,
			Details:     details,
		}},
	}, nil
}

// percentOf computes base*pct/100 rounded half away from zero, matching the
// original platform's arithmetic at currency-unit granularity.
func percentOf(base int64, pct float64) int64 {
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
