package settlements

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/pkg/db"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

func setupSettlementsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  phone TEXT NOT NULL UNIQUE,
  name TEXT,
  role TEXT NOT NULL DEFAULT 'USER',
  balance INTEGER NOT NULL DEFAULT 0,
  fcm_token TEXT,
  last_seen DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS partners (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT 'SERVICE_CENTER',
  city TEXT,
  phone TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  commission_percent REAL,
  discount_percent REAL,
  manager_id TEXT UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS settlements (
  id TEXT PRIMARY KEY,
  partner_id TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  total_commission INTEGER NOT NULL,
  total_cashback_redeemed INTEGER NOT NULL,
  net_amount INTEGER NOT NULL,
  is_paid INTEGER NOT NULL DEFAULT 0,
  receipt_url TEXT,
  receipt_status TEXT NOT NULL DEFAULT 'NONE',
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS visits (
  id TEXT PRIMARY KEY,
  car_id TEXT NOT NULL,
  partner_id TEXT NOT NULL,
  description TEXT NOT NULL,
  cost INTEGER NOT NULL,
  mileage INTEGER,
  cashback INTEGER NOT NULL DEFAULT 0,
  cashback_used INTEGER NOT NULL DEFAULT 0,
  service_fee INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'COMPLETED',
  settlement_id TEXT,
  created_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type stubLock struct {
	denied   bool
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	if l.denied {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

type settlementsFixture struct {
	conn *gorm.DB
	svc  Service
	lock *stubLock
}

func newSettlementsFixture(t *testing.T) *settlementsFixture {
	t.Helper()

	conn := setupSettlementsTestDB(t)
	lock := &stubLock{}
	logg := logger.New(logger.Options{ServiceName: "settlements-test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), db.FromConn(conn), lock, logg, nil)
	require.NoError(t, err)
	return &settlementsFixture{conn: conn, svc: svc, lock: lock}
}

func (f *settlementsFixture) seedPartner(t *testing.T, managerID *uuid.UUID) *models.Partner {
	t.Helper()
	partner := &models.Partner{
		ID:        uuid.New(),
		Name:      "Partner " + uuid.NewString()[:8],
		Type:      enums.PartnerTypeServiceCenter,
		IsActive:  true,
		ManagerID: managerID,
	}
	require.NoError(t, f.conn.Create(partner).Error)
	return partner
}

func (f *settlementsFixture) seedVisit(t *testing.T, partnerID uuid.UUID, serviceFee, cashbackUsed int64, at time.Time) *models.Visit {
	t.Helper()
	visit := &models.Visit{
		ID:           uuid.New(),
		CarID:        uuid.New(),
		PartnerID:    partnerID,
		Description:  "test visit",
		Cost:         serviceFee * 4,
		CashbackUsed: cashbackUsed,
		ServiceFee:   serviceFee,
		Status:       enums.VisitStatusCompleted,
		CreatedAt:    at,
	}
	require.NoError(t, f.conn.Create(visit).Error)
	return visit
}

func (f *settlementsFixture) seedManager(t *testing.T) *models.User {
	t.Helper()
	user := &models.User{
		ID:    uuid.New(),
		Phone: "+1" + uuid.NewString()[:10],
		Role:  string(enums.RolePartnerManager),
	}
	require.NoError(t, f.conn.Create(user).Error)
	return user
}

func period() (time.Time, time.Time) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func TestCreateBatchAggregatesPerPartner(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	start, end := period()
	partner := f.seedPartner(t, nil)
	f.seedVisit(t, partner.ID, 1000, 0, start.Add(24*time.Hour))
	f.seedVisit(t, partner.ID, 2000, 500, start.Add(48*time.Hour))
	f.seedVisit(t, partner.ID, 1500, 0, start.Add(72*time.Hour))

	created, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, created, 1)

	settlement := created[0]
	assert.Equal(t, partner.ID, settlement.PartnerID)
	assert.Equal(t, int64(4500), settlement.TotalCommission)
	assert.Equal(t, int64(500), settlement.TotalCashbackRedeemed)
	assert.Equal(t, settlement.TotalCommission, settlement.NetAmount)
	assert.False(t, settlement.IsPaid)
	assert.Equal(t, enums.ReceiptStatusNone, settlement.ReceiptStatus)

	var stamped int64
	require.NoError(t, f.conn.Model(&models.Visit{}).
		Where("partner_id = ? AND settlement_id = ?", partner.ID, settlement.ID).
		Count(&stamped).Error)
	assert.Equal(t, int64(3), stamped)

	assert.Equal(t, 1, f.lock.acquired)
	assert.Equal(t, 1, f.lock.released)
}

func TestCreateBatchRerunFindsNothing(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	start, end := period()
	partner := f.seedPartner(t, nil)
	f.seedVisit(t, partner.ID, 1000, 0, start.Add(time.Hour))

	first, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestCreateBatchIgnoresVisitsOutsidePeriod(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	start, end := period()
	partner := f.seedPartner(t, nil)
	f.seedVisit(t, partner.ID, 1000, 0, start.Add(-time.Hour))
	f.seedVisit(t, partner.ID, 2000, 0, end.Add(time.Hour))

	created, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestCreateBatchIncludesPeriodBoundaryVisits(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	start, end := period()
	partner := f.seedPartner(t, nil)
	f.seedVisit(t, partner.ID, 1000, 0, start)
	f.seedVisit(t, partner.ID, 2000, 0, end)

	created, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, int64(3000), created[0].TotalCommission)

	// a rerun over the adjacent period must not pick the boundary visit again
	again, err := f.svc.CreateBatch(ctx, end, end.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCreateBatchLockDenied(t *testing.T) {
	f := newSettlementsFixture(t)
	f.lock.denied = true

	start, end := period()
	_, err := f.svc.CreateBatch(context.Background(), start, end)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreateBatchRejectsInvertedPeriod(t *testing.T) {
	f := newSettlementsFixture(t)

	start, end := period()
	_, err := f.svc.CreateBatch(context.Background(), end, start)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func (f *settlementsFixture) seedSettlement(t *testing.T, partnerID uuid.UUID, mutate func(*models.Settlement)) *models.Settlement {
	t.Helper()
	start, end := period()
	settlement := &models.Settlement{
		ID:                    uuid.New(),
		PartnerID:             partnerID,
		PeriodStart:           start,
		PeriodEnd:             end,
		TotalCommission:       4500,
		TotalCashbackRedeemed: 500,
		NetAmount:             4500,
		ReceiptStatus:         enums.ReceiptStatusNone,
	}
	if mutate != nil {
		mutate(settlement)
	}
	require.NoError(t, f.conn.Create(settlement).Error)
	return settlement
}

func TestUpdateApproveReceiptForcesPaid(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	partner := f.seedPartner(t, nil)
	settlement := f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.ReceiptStatus = enums.ReceiptStatusPending
	})

	approved := enums.ReceiptStatusApproved
	updated, err := f.svc.UpdateSettlement(ctx, settlement.ID, UpdateInput{ReceiptStatus: &approved})
	require.NoError(t, err)

	assert.Equal(t, enums.ReceiptStatusApproved, updated.ReceiptStatus)
	assert.True(t, updated.IsPaid, "approval must mark the settlement paid in the same update")
}

func TestUpdateMarkPaidBlockedDuringReview(t *testing.T) {
	f := newSettlementsFixture(t)

	partner := f.seedPartner(t, nil)
	settlement := f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.ReceiptStatus = enums.ReceiptStatusPending
	})

	paid := true
	_, err := f.svc.UpdateSettlement(context.Background(), settlement.ID, UpdateInput{IsPaid: &paid})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateRejectsInvalidReceiptTransition(t *testing.T) {
	f := newSettlementsFixture(t)

	partner := f.seedPartner(t, nil)
	settlement := f.seedSettlement(t, partner.ID, nil)

	// NONE can only go to PENDING
	approved := enums.ReceiptStatusApproved
	_, err := f.svc.UpdateSettlement(context.Background(), settlement.ID, UpdateInput{ReceiptStatus: &approved})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateEmptyInputRejected(t *testing.T) {
	f := newSettlementsFixture(t)

	_, err := f.svc.UpdateSettlement(context.Background(), uuid.New(), UpdateInput{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestDeleteReleasesVisits(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	start, end := period()
	partner := f.seedPartner(t, nil)
	f.seedVisit(t, partner.ID, 1000, 0, start.Add(time.Hour))

	created, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, f.svc.DeleteSettlement(ctx, created[0].ID))

	var unsettled int64
	require.NoError(t, f.conn.Model(&models.Visit{}).
		Where("partner_id = ? AND settlement_id IS NULL", partner.ID).
		Count(&unsettled).Error)
	assert.Equal(t, int64(1), unsettled)

	// and the same period can be settled again
	again, err := f.svc.CreateBatch(ctx, start, end)
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestDeletePaidSettlementBlocked(t *testing.T) {
	f := newSettlementsFixture(t)

	partner := f.seedPartner(t, nil)
	settlement := f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.IsPaid = true
	})

	err := f.svc.DeleteSettlement(context.Background(), settlement.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestSubmitReceiptOnExistingSettlement(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	f.seedSettlement(t, partner.ID, nil)

	updated, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{
		ManagerID:  manager.ID,
		ReceiptURL: "https://cdn.example.com/receipts/abc.pdf",
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)

	assert.Equal(t, enums.ReceiptStatusPending, updated[0].ReceiptStatus)
	require.NotNil(t, updated[0].ReceiptURL)
	assert.Equal(t, "https://cdn.example.com/receipts/abc.pdf", *updated[0].ReceiptURL)
}

func TestSubmitReceiptAttachesToAllUnpaid(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	f.seedSettlement(t, partner.ID, nil)
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.ReceiptStatus = enums.ReceiptStatusRejected
	})

	updated, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{
		ManagerID:  manager.ID,
		ReceiptURL: "https://cdn.example.com/receipts/batch.pdf",
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)

	for _, s := range updated {
		assert.Equal(t, enums.ReceiptStatusPending, s.ReceiptStatus)
		require.NotNil(t, s.ReceiptURL)
		assert.Equal(t, "https://cdn.example.com/receipts/batch.pdf", *s.ReceiptURL)
	}

	var pending int64
	require.NoError(t, f.conn.Model(&models.Settlement{}).
		Where("partner_id = ? AND receipt_status = ?", partner.ID, enums.ReceiptStatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(2), pending)
}

func TestSubmitReceiptAutoCreatesSettlement(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	f.seedVisit(t, partner.ID, 1200, 0, monthStart)
	// last month's visit must stay out of the auto-created settlement
	f.seedVisit(t, partner.ID, 9000, 0, monthStart.Add(-time.Hour))

	created, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{
		ManagerID:  manager.ID,
		ReceiptURL: "https://cdn.example.com/receipts/auto.pdf",
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, partner.ID, created[0].PartnerID)
	assert.Equal(t, int64(1200), created[0].TotalCommission)
	assert.Equal(t, enums.ReceiptStatusPending, created[0].ReceiptStatus)
	assert.True(t, created[0].PeriodStart.Equal(monthStart))

	var stamped int64
	require.NoError(t, f.conn.Model(&models.Visit{}).
		Where("partner_id = ? AND settlement_id = ?", partner.ID, created[0].ID).
		Count(&stamped).Error)
	assert.Equal(t, int64(1), stamped)
}

func TestSubmitReceiptResubmitAfterRejection(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.ReceiptStatus = enums.ReceiptStatusRejected
	})

	updated, err := f.svc.SubmitReceipt(ctx, SubmitReceiptInput{
		ManagerID:  manager.ID,
		ReceiptURL: "https://cdn.example.com/receipts/retry.pdf",
	})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, enums.ReceiptStatusPending, updated[0].ReceiptStatus)
}

func TestSubmitReceiptWhilePendingBlocked(t *testing.T) {
	f := newSettlementsFixture(t)

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.ReceiptStatus = enums.ReceiptStatusPending
	})

	_, err := f.svc.SubmitReceipt(context.Background(), SubmitReceiptInput{
		ManagerID:  manager.ID,
		ReceiptURL: "https://cdn.example.com/receipts/dup.pdf",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestSubmitReceiptForeignSettlementForbidden(t *testing.T) {
	f := newSettlementsFixture(t)

	manager := f.seedManager(t)
	f.seedPartner(t, &manager.ID)
	other := f.seedPartner(t, nil)
	foreign := f.seedSettlement(t, other.ID, nil)

	_, err := f.svc.SubmitReceipt(context.Background(), SubmitReceiptInput{
		ManagerID:    manager.ID,
		SettlementID: &foreign.ID,
		ReceiptURL:   "https://cdn.example.com/receipts/x.pdf",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestPartnerFinancesTotals(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	manager := f.seedManager(t)
	partner := f.seedPartner(t, &manager.ID)
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.NetAmount = 4500
	})
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.NetAmount = 3000
		s.IsPaid = true
		s.ReceiptStatus = enums.ReceiptStatusApproved
	})
	f.seedVisit(t, partner.ID, 700, 0, time.Now().UTC().Add(-time.Hour))

	finances, err := f.svc.PartnerFinances(ctx, manager.ID)
	require.NoError(t, err)

	assert.Equal(t, partner.ID, finances.Partner.ID)
	assert.Len(t, finances.Settlements, 2)
	assert.Equal(t, int64(4500), finances.TotalOwed)
	assert.Equal(t, int64(3000), finances.TotalPaid)
	assert.Equal(t, int64(700), finances.UnsettledCommission)
	assert.Equal(t, int64(1), finances.UnsettledVisits)
}

func TestPartnerFinancesNoPartnerForbidden(t *testing.T) {
	f := newSettlementsFixture(t)

	_, err := f.svc.PartnerFinances(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestListSettlementsFilters(t *testing.T) {
	f := newSettlementsFixture(t)
	ctx := context.Background()

	partner := f.seedPartner(t, nil)
	f.seedSettlement(t, partner.ID, nil)
	f.seedSettlement(t, partner.ID, func(s *models.Settlement) {
		s.IsPaid = true
		s.ReceiptStatus = enums.ReceiptStatusApproved
	})

	unpaid := false
	rows, total, err := f.svc.ListSettlements(ctx, ListFilter{PartnerID: &partner.ID, IsPaid: &unpaid}, pagination.Page{Number: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsPaid)
}
