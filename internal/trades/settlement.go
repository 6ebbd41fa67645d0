package trades

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CompoundTransition is a transition whose status write must commit together
// with other mutations (typically money movement). It owns the whole
// transaction body, including the conditional status write.
type CompoundTransition interface {
	Preview(ctx context.Context, trade *Trade, params TransitionParams) (map[string]interface{}, error)
	Execute(ctx context.Context, tx TxStore, req CompoundRequest) (*Trade, interface{}, error)
}

// CompoundRequest is the input handed to a compound transition
type CompoundRequest struct {
	Trade  *Trade
	Target TradeStatus
	Params TransitionParams
	Update *StatusUpdate
	Now    time.Time
}

// SettlementResult describes a completed settlement
type SettlementResult struct {
	EscrowID       uuid.UUID  `json:"escrow_id"`
	PayoutID       uuid.UUID  `json:"payout_id"`
	PayeeID        *uuid.UUID `json:"payee_id,omitempty"`
	AmountReleased float64    `json:"amount_released"`
	Currency       string     `json:"currency"`
	SettledAt      time.Time  `json:"settled_at"`
}

// SettlementExecutor releases escrow, books the payout and writes the
// settled status in one transaction.
type SettlementExecutor struct {
	repo Repository
}

// NewSettlementExecutor creates the settlement compound transition
func NewSettlementExecutor(repo Repository) *SettlementExecutor {
	return &SettlementExecutor{repo: repo}
}

// Preview reports the funds a settlement would unlock
func (s *SettlementExecutor) Preview(ctx context.Context, trade *Trade, params TransitionParams) (map[string]interface{}, error) {
	escrow, err := s.repo.GetEscrow(ctx, trade.ID)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if escrow != nil {
		out["funds_to_unlock"] = map[string]interface{}{
			"escrow_id": escrow.ID.String(),
			"amount":    releasable(escrow),
			"currency":  escrow.Currency,
		}
	}
	if trade.SellerID != nil {
		out["payee_id"] = trade.SellerID.String()
	}
	return out, nil
}

// Execute runs inside the caller's transaction
func (s *SettlementExecutor) Execute(ctx context.Context, tx TxStore, req CompoundRequest) (*Trade, interface{}, error) {
	escrow, err := tx.LockEscrow(ctx, req.Trade.ID)
	if err != nil {
		return nil, nil, err
	}
	if escrow == nil {
		return nil, nil, errors.New("no escrow exists for trade")
	}
	if escrow.Status != EscrowFunded {
		return nil, nil, fmt.Errorf("escrow is %s, expected %s", escrow.Status, EscrowFunded)
	}

	if err := tx.ReleaseEscrow(ctx, escrow.ID, req.Now); err != nil {
		return nil, nil, err
	}

	released := releasable(escrow)
	reference := ""
	if p, ok := req.Params.(SettlementParams); ok {
		reference = p.PayoutReference
	}
	payout := &Payout{
		ID:        uuid.New(),
		TradeID:   req.Trade.ID,
		EscrowID:  escrow.ID,
		PayeeID:   req.Trade.SellerID,
		Amount:    released,
		Currency:  escrow.Currency,
		Reference: reference,
		CreatedAt: req.Now,
	}
	if err := tx.CreatePayout(ctx, payout); err != nil {
		return nil, nil, err
	}

	req.Update.CompletedAt = &req.Now
	updated, err := tx.UpdateTradeStatus(ctx, req.Update)
	if err != nil {
		return nil, nil, err
	}

	return updated, &SettlementResult{
		EscrowID:       escrow.ID,
		PayoutID:       payout.ID,
		PayeeID:        payout.PayeeID,
		AmountReleased: released,
		Currency:       escrow.Currency,
		SettledAt:      req.Now,
	}, nil
}

// releasable is the funded balance, falling back to the escrowed amount when
// the collector did not record a balance.
func releasable(escrow *Escrow) float64 {
	if escrow.Balance > 0 {
		return escrow.Balance
	}
	return escrow.Amount
}
