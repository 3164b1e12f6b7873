package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
	"rental/internal/repository"
)

func seededStore() *Store {
	s := NewStore()
	s.AddVehicle(&domain.Vehicle{ID: "vehicle-1", OwnerID: "owner-1", PricePerDay: 5000})
	s.AddWallet(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 100})
	return s
}

func TestWithinTx_RollbackUndoesWrites(t *testing.T) {
	t.Parallel()

	s := seededStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.Bookings().Create(ctx, &domain.Booking{ID: "booking-1", VehicleID: "vehicle-1"}))

		w, err := tx.LockWallet(ctx, "user-1")
		require.NoError(t, err)
		w.Balance = 0
		require.NoError(t, tx.Wallets().UpdateBalance(ctx, w))
		require.NoError(t, tx.Wallets().AppendTransaction(ctx, &domain.WalletTransaction{ID: "wt-1", WalletID: w.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Bookings().GetByID(ctx, "booking-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	w, err := s.Wallets().GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, w.Balance)

	txns, err := s.Wallets().ListTransactions(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestWithinTx_PanicRollsBackAndReleasesLocks(t *testing.T) {
	t.Parallel()

	s := seededStore()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.LockVehicle(ctx, "vehicle-1")
			require.NoError(t, err)
			require.NoError(t, tx.Bookings().Create(ctx, &domain.Booking{ID: "booking-1", VehicleID: "vehicle-1"}))
			panic("unexpected")
		})
	})

	assert.Equal(t, 0, s.CountBookings())

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.LockVehicle(ctx, "vehicle-1")
		return err
	})
	assert.NoError(t, err, "lock must be released after panic")
}

func TestLockVehicle_TimesOutWhileHeld(t *testing.T) {
	t.Parallel()

	s := seededStore()
	s.SetLockWait(50 * time.Millisecond)
	ctx := context.Background()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			_, err := tx.LockVehicle(ctx, "vehicle-1")
			close(locked)
			<-done
			return err
		})
	}()
	<-locked

	err := s.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.LockVehicle(ctx, "vehicle-1")
		return err
	})
	close(done)

	assert.ErrorIs(t, err, repository.ErrLockTimeout)
}

func TestLockVehicle_ReentrantWithinTx(t *testing.T) {
	t.Parallel()

	s := seededStore()
	s.SetLockWait(50 * time.Millisecond)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockVehicle(ctx, "vehicle-1"); err != nil {
			return err
		}
		_, err := tx.LockVehicle(ctx, "vehicle-1")
		return err
	})
	assert.NoError(t, err)
}

func TestLockVehicle_DeletedVehicleNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.AddVehicle(&domain.Vehicle{ID: "vehicle-1", DeletedAt: time.Now()})

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.LockVehicle(ctx, "vehicle-1")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRevenue_CreateBatchSkipsDuplicates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	rec := func(id string, typ domain.RevenueType) *domain.RevenueRecord {
		return &domain.RevenueRecord{ID: id, BookingID: "b", PaymentID: "p", RevenueType: typ, Status: domain.RevenueStatusPending}
	}

	require.NoError(t, s.Revenue().CreateBatch(ctx, []*domain.RevenueRecord{rec("r1", domain.RevenueTypeCommission), rec("r2", domain.RevenueTypePlatformFee)}))
	require.NoError(t, s.Revenue().CreateBatch(ctx, []*domain.RevenueRecord{rec("r3", domain.RevenueTypeCommission), rec("r4", domain.RevenueTypePlatformFee)}))

	records, err := s.Revenue().ListByPayment(ctx, "b", "p")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, "r2", records[1].ID)
}

func TestPricingRules_ListActiveOrdering(t *testing.T) {
	t.Parallel()

	s := NewStore()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.AddPricingRule(&domain.PricingRule{ID: "low", RuleType: domain.RuleTypeCommission, IsActive: true, Priority: 1, CreatedAt: now})
	s.AddPricingRule(&domain.PricingRule{ID: "high-old", RuleType: domain.RuleTypeCommission, IsActive: true, Priority: 5, CreatedAt: now.Add(-time.Hour)})
	s.AddPricingRule(&domain.PricingRule{ID: "high-new", RuleType: domain.RuleTypeCommission, IsActive: true, Priority: 5, CreatedAt: now})
	s.AddPricingRule(&domain.PricingRule{ID: "expired", RuleType: domain.RuleTypeCommission, IsActive: true, Priority: 9, EndsAt: now.Add(-time.Hour)})
	s.AddPricingRule(&domain.PricingRule{ID: "fee", RuleType: domain.RuleTypePlatformFee, IsActive: true, Priority: 9})

	rules, err := s.PricingRules().ListActive(context.Background(), domain.RuleTypeCommission, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"high-new", "high-old", "low"}, ids)
}
