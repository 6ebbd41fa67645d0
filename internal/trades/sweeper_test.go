package trades

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEscrowSweeper is a mock implementation of the EscrowSweeper interface
type MockEscrowSweeper struct {
	mock.Mock
}

func (m *MockEscrowSweeper) ExpirePendingEscrows(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sweeper := new(MockEscrowSweeper)
	sweeper.On("ExpirePendingEscrows", mock.Anything, now).Return(int64(3), nil).Once()

	w := NewEscrowExpiryWorker(sweeper, "@every 1h", zap.NewNop())
	w.now = func() time.Time { return now }

	assert.Equal(t, int64(3), w.RunOnce(context.Background()))
	sweeper.AssertExpectations(t)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	sweeper := new(MockEscrowSweeper)
	sweeper.On("ExpirePendingEscrows", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	w := NewEscrowExpiryWorker(sweeper, "@every 1h", zap.NewNop())
	assert.Zero(t, w.RunOnce(context.Background()))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := NewEscrowExpiryWorker(new(MockEscrowSweeper), "every so often", zap.NewNop())
	assert.Error(t, w.Start(context.Background()))
}

func TestStartStop(t *testing.T) {
	w := NewEscrowExpiryWorker(new(MockEscrowSweeper), "@every 1h", zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
