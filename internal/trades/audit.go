package trades

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
)

// EventStore is the append-only audit trail
type EventStore interface {
	Append(ctx context.Context, event *TradeEvent) error
	ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]TradeEvent, error)
}

// EventSink receives a copy of every appended event
type EventSink interface {
	Index(ctx context.Context, event *TradeEvent) error
}

// Attempt describes one transition attempt to be audited
type Attempt struct {
	Trade      *Trade
	Caller     auth.Caller
	Role       Role
	From       TradeStatus
	To         TradeStatus
	Decision   Decision
	EventType  string
	Params     TransitionParams
	Settlement *SettlementResult
	Err        error
}

// AuditLogger writes one TradeEvent per attempt and fans it out to sinks
type AuditLogger struct {
	store  EventStore
	sinks  []EventSink
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditLogger creates an audit logger
func NewAuditLogger(store EventStore, logger *zap.Logger, sinks ...EventSink) *AuditLogger {
	return &AuditLogger{
		store:  store,
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// Record persists the attempt. Sink failures are logged and swallowed.
func (a *AuditLogger) Record(ctx context.Context, attempt *Attempt) (*TradeEvent, error) {
	payload := map[string]interface{}{}
	if attempt.Decision.Reason != "" {
		payload["reason"] = attempt.Decision.Reason
	}
	if attempt.Params != nil {
		if patch := attempt.Params.Patch(); len(patch) > 0 {
			payload["metadata"] = patch
		}
	}
	if attempt.Settlement != nil {
		payload["settlement"] = attempt.Settlement
	}
	if attempt.Err != nil {
		payload["error"] = attempt.Err.Error()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	actions := attempt.Decision.RequiredActions
	if actions == nil {
		actions = []string{}
	}

	event := &TradeEvent{
		ID:              uuid.New(),
		TradeID:         attempt.Trade.ID,
		EventType:       attempt.EventType,
		StatusFrom:      attempt.From,
		StatusTo:        attempt.To,
		ActorUserID:     attempt.Caller.UserID,
		ActorRole:       attempt.Role,
		Decision:        attempt.Decision.Outcome,
		ReasonCode:      attempt.Decision.ReasonCode,
		RequiredActions: pq.StringArray(actions),
		Payload:         datatypes.JSON(raw),
		CreatedAt:       a.now(),
	}

	if err := a.store.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append trade event: %w", err)
	}

	for _, sink := range a.sinks {
		if err := sink.Index(ctx, event); err != nil {
			a.logger.Warn("Failed to mirror trade event",
				zap.Error(err),
				zap.String("event_id", event.ID.String()),
				zap.String("trade_id", event.TradeID.String()))
		}
	}
	return event, nil
}

// History returns the audit trail of a trade, oldest first
func (a *AuditLogger) History(ctx context.Context, tradeID uuid.UUID) ([]TradeEvent, error) {
	return a.store.ListByTrade(ctx, tradeID)
}

// GormEventStore appends trade events through gorm
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates an event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// Append inserts the event; rows are never updated
func (s *GormEventStore) Append(ctx context.Context, event *TradeEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

// ListByTrade returns the events of a trade in insertion order
func (s *GormEventStore) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]TradeEvent, error) {
	var events []TradeEvent
	err := s.db.WithContext(ctx).
		Where("trade_id = ?", tradeID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trade events: %w", err)
	}
	return events, nil
}
