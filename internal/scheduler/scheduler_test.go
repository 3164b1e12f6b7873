package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rental/internal/redis"
)

type fakeActivator struct {
	calls int
	asOf  time.Time
	err   error
}

func (f *fakeActivator) ActivateDueBookings(ctx context.Context, asOf time.Time) (int, error) {
	f.calls++
	f.asOf = asOf
	return 1, f.err
}

type fakeMarker struct {
	calls int
}

func (f *fakeMarker) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	f.calls++
	return 0, nil
}

func newLockStore(t *testing.T) *redis.LockStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewLockStore(client)
}

func TestHandleActivateDueBookings(t *testing.T) {
	t.Parallel()

	activator := &fakeActivator{}
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	s := New(Config{}, activator, &fakeMarker{}, newLockStore(t), zaptest.NewLogger(t))
	s.now = func() time.Time { return now }

	err := s.HandleActivateDueBookings(context.Background(), asynq.NewTask(TypeActivateDueBookings, nil))

	require.NoError(t, err)
	assert.Equal(t, 1, activator.calls)
	assert.Equal(t, now, activator.asOf)
}

func TestHandler_SkipsWhileAnotherInstanceRuns(t *testing.T) {
	t.Parallel()

	locks := newLockStore(t)
	marker := &fakeMarker{}
	s := New(Config{}, &fakeActivator{}, marker, locks, zaptest.NewLogger(t))

	release, err := locks.Acquire(context.Background(), "job:"+TypeMarkOverdueInstallments, time.Minute, 0)
	require.NoError(t, err)

	err = s.HandleMarkOverdueInstallments(context.Background(), asynq.NewTask(TypeMarkOverdueInstallments, nil))
	require.NoError(t, err)
	assert.Zero(t, marker.calls)

	release()

	err = s.HandleMarkOverdueInstallments(context.Background(), asynq.NewTask(TypeMarkOverdueInstallments, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, marker.calls)
}

func TestHandler_ReturnsJobErrorForRetry(t *testing.T) {
	t.Parallel()

	boom := errors.New("database unavailable")
	s := New(Config{}, &fakeActivator{err: boom}, &fakeMarker{}, nil, zaptest.NewLogger(t))

	err := s.HandleActivateDueBookings(context.Background(), asynq.NewTask(TypeActivateDueBookings, nil))
	assert.ErrorIs(t, err, boom)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := New(Config{RedisAddr: "localhost:6379"}, &fakeActivator{}, &fakeMarker{}, nil, zaptest.NewLogger(t))

	assert.Equal(t, 2, s.cfg.Concurrency)
	assert.Equal(t, "@every 5m", s.cfg.ActivateSpec)
	assert.Equal(t, "@every 1h", s.cfg.OverdueSpec)
	assert.NotNil(t, s.Mux())
}
