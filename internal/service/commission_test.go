package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
)

func TestCreateRevenueRecords_IsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))
	require.NoError(t, result.PaymentError)

	first, err := f.commission.CreateRevenueRecords(ctx, result.Booking.ID, result.Payment.ID)
	require.NoError(t, err)
	second, err := f.commission.CreateRevenueRecords(ctx, result.Booking.ID, result.Payment.ID)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.ElementsMatch(t, []string{first[0].ID, first[1].ID}, []string{second[0].ID, second[1].ID})

	byType := map[domain.RevenueType]*domain.RevenueRecord{}
	for _, r := range second {
		byType[r.RevenueType] = r
	}
	assert.Equal(t, 3000.0, byType[domain.RevenueTypeCommission].Amount)
	assert.Equal(t, 15.0, byType[domain.RevenueTypeCommission].Rate)
	assert.Equal(t, 500.0, byType[domain.RevenueTypePlatformFee].Amount)
	assert.Equal(t, "owner-1", byType[domain.RevenueTypePlatformFee].OwnerID)
}

func TestCreateRevenueRecords_RequiresCompletedPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	_, err := f.commission.CreateRevenueRecords(ctx, result.Booking.ID, result.Payment.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	other := f.book(t, domain.PaymentMethodGateway, day(time.June, 10), day(time.June, 12))
	_, err = f.commission.CreateRevenueRecords(ctx, result.Booking.ID, other.Payment.ID)
	assert.ErrorIs(t, err, ErrInvalidPaymentID)

	_, err = f.commission.CreateRevenueRecords(ctx, "", result.Payment.ID)
	assert.ErrorIs(t, err, ErrInvalidBookingID)
}

func TestSettle_OnlyPendingRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))

	records, err := f.store.Revenue().ListByPayment(ctx, result.Booking.ID, result.Payment.ID)
	require.NoError(t, err)
	ids := []string{records[0].ID, records[1].ID}

	n, err := f.commission.Settle(ctx, ids, "2026-06")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.commission.Settle(ctx, ids, "2026-06")
	require.NoError(t, err)
	assert.Zero(t, n)

	cancelled, err := f.commission.CancelForBooking(ctx, result.Booking.ID)
	require.NoError(t, err)
	assert.Zero(t, cancelled, "settled records stay settled")
}
