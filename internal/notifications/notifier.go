package notifications

import (
	"time"

	"go.uber.org/zap"
)

// TransitionNotice announces a committed trade transition
type TransitionNotice struct {
	TradeID     string    `json:"trade_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ActorUserID string    `json:"actor_user_id"`
	ActorRole   string    `json:"actor_role"`
	BuyerID     string    `json:"buyer_id"`
	SellerID    string    `json:"seller_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers notices without blocking the caller. Delivery failures
// never reach the caller.
type Notifier interface {
	TradeTransitioned(notice TransitionNotice)
}

// LogNotifier writes notices to the log; used when no topic is configured
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TradeTransitioned(notice TransitionNotice) {
	n.logger.Info("Trade transitioned",
		zap.String("trade_id", notice.TradeID),
		zap.String("from", notice.From),
		zap.String("to", notice.To),
		zap.String("actor_role", notice.ActorRole))
}
