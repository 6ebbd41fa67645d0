package trades

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
)

// MockEventSink is a mock implementation of the EventSink interface
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Index(ctx context.Context, event *TradeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newAttempt() *Attempt {
	return &Attempt{
		Trade:     &Trade{ID: uuid.New()},
		Caller:    auth.Caller{UserID: uuid.New()},
		Role:      RoleBuyer,
		From:      StatusRFQOpen,
		To:        StatusQuoted,
		Decision:  block(ReasonNoQuotes, "no quotes", "await_supplier_quotes"),
		EventType: EventTransitionBlocked,
		Params:    NoParams{},
	}
}

func TestAuditRecordBuildsEvent(t *testing.T) {
	store := &memEventStore{}
	sink := new(MockEventSink)
	sink.On("Index", mock.Anything, mock.AnythingOfType("*trades.TradeEvent")).Return(nil)

	logger := NewAuditLogger(store, zap.NewNop(), sink)
	attempt := newAttempt()

	event, err := logger.Record(context.Background(), attempt)
	require.NoError(t, err)

	assert.Equal(t, attempt.Trade.ID, event.TradeID)
	assert.Equal(t, attempt.Caller.UserID, event.ActorUserID)
	assert.Equal(t, RoleBuyer, event.ActorRole)
	assert.Equal(t, OutcomeBlock, event.Decision)
	assert.Equal(t, ReasonNoQuotes, event.ReasonCode)
	assert.Equal(t, []string{"await_supplier_quotes"}, []string(event.RequiredActions))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "no quotes", payload["reason"])
	assert.NotContains(t, payload, "metadata")

	assert.Len(t, store.all(), 1)
	sink.AssertExpectations(t)
}

func TestAuditRecordAllowHasEmptyActions(t *testing.T) {
	store := &memEventStore{}
	attempt := newAttempt()
	attempt.Decision = allow()
	attempt.EventType = EventTransitionAllowed

	event, err := NewAuditLogger(store, zap.NewNop()).Record(context.Background(), attempt)
	require.NoError(t, err)
	assert.NotNil(t, event.RequiredActions)
	assert.Empty(t, event.RequiredActions)
}

func TestAuditSinkFailureIsSwallowed(t *testing.T) {
	store := &memEventStore{}
	sink := new(MockEventSink)
	sink.On("Index", mock.Anything, mock.Anything).Return(errors.New("cluster red"))

	_, err := NewAuditLogger(store, zap.NewNop(), sink).Record(context.Background(), newAttempt())
	require.NoError(t, err)
	assert.Len(t, store.all(), 1)
	sink.AssertNumberOfCalls(t, "Index", 1)
}

func TestAuditStoreFailureSkipsSinks(t *testing.T) {
	store := &memEventStore{err: errors.New("db down")}
	sink := new(MockEventSink)

	_, err := NewAuditLogger(store, zap.NewNop(), sink).Record(context.Background(), newAttempt())
	require.Error(t, err)
	sink.AssertNotCalled(t, "Index", mock.Anything, mock.Anything)
}
