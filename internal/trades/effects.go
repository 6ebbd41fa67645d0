package trades

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	tradeTypeRFQ    = "rfq"
	tradeTypeDirect = "direct"
	defaultCurrency = "USD"
)

// effectPlan lists the mutations a simple transition implies
type effectPlan struct {
	acceptQuoteID *uuid.UUID
	supplierID    *uuid.UUID
	awardRFQID    *uuid.UUID
	tradeType     *string
	escrow        *Escrow
}

// SideEffectExecutor plans and applies the non-settlement mutations of a transition
type SideEffectExecutor struct {
	repo      Repository
	escrowTTL time.Duration
}

// NewSideEffectExecutor creates an executor; escrowTTL sets the default escrow expiry
func NewSideEffectExecutor(repo Repository, escrowTTL time.Duration) *SideEffectExecutor {
	return &SideEffectExecutor{repo: repo, escrowTTL: escrowTTL}
}

// Plan reads what is needed to apply the transition's side effects.
// It never writes.
func (e *SideEffectExecutor) Plan(ctx context.Context, trade *Trade, target TradeStatus, params TransitionParams, now time.Time) (*effectPlan, error) {
	plan := &effectPlan{}
	switch target {
	case StatusContracted:
		return plan, e.planContract(ctx, plan, trade, params)
	case StatusEscrowRequired:
		return plan, e.planEscrow(ctx, plan, trade, params, now)
	}
	return plan, nil
}

func (e *SideEffectExecutor) planContract(ctx context.Context, plan *effectPlan, trade *Trade, params TransitionParams) error {
	p, _ := params.(ContractParams)

	var quote *Quote
	var err error
	if p.SelectedQuoteID != nil {
		quote, err = e.repo.GetQuote(ctx, trade.ID, *p.SelectedQuoteID)
		plan.acceptQuoteID = p.SelectedQuoteID
	} else {
		quote, err = e.repo.GetAcceptedQuote(ctx, trade.ID)
	}
	if err != nil {
		return err
	}

	switch {
	case p.SupplierID != nil:
		plan.supplierID = p.SupplierID
	case quote != nil:
		supplier := quote.SupplierID
		plan.supplierID = &supplier
	}

	tradeType := tradeTypeDirect
	if trade.RFQID != nil {
		tradeType = tradeTypeRFQ
		if plan.supplierID == nil {
			return errors.New("cannot award rfq without a supplier")
		}
		plan.awardRFQID = trade.RFQID
	}
	plan.tradeType = &tradeType
	return nil
}

func (e *SideEffectExecutor) planEscrow(ctx context.Context, plan *effectPlan, trade *Trade, params TransitionParams, now time.Time) error {
	existing, err := e.repo.GetEscrow(ctx, trade.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	p, _ := params.(EscrowParams)
	amount, err := escrowAmount(trade, p)
	if err != nil {
		return err
	}

	currency := defaultCurrency
	switch {
	case p.Currency != "":
		currency = strings.ToUpper(p.Currency)
	case trade.Currency != "":
		currency = trade.Currency
	}

	expires := now.Add(e.escrowTTL)
	plan.escrow = &Escrow{
		ID:        uuid.New(),
		TradeID:   trade.ID,
		Status:    EscrowPending,
		Amount:    amount,
		Currency:  currency,
		Balance:   0,
		ExpiresAt: &expires,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func escrowAmount(trade *Trade, p EscrowParams) (float64, error) {
	var amount float64
	switch {
	case p.EscrowAmount != nil:
		amount = *p.EscrowAmount
	case trade.TotalAmount != nil:
		amount = *trade.TotalAmount
	case trade.UnitPrice != nil && trade.Quantity != nil:
		amount = *trade.UnitPrice * *trade.Quantity
	}
	if amount <= 0 {
		return 0, fmt.Errorf("escrow amount must be greater than zero, got %.2f", amount)
	}
	return amount, nil
}

// Apply performs the planned mutations inside tx
func (e *SideEffectExecutor) Apply(ctx context.Context, tx TxStore, trade *Trade, plan *effectPlan) error {
	if plan.acceptQuoteID != nil {
		if err := tx.AcceptQuote(ctx, trade.ID, *plan.acceptQuoteID); err != nil {
			return err
		}
	}
	if plan.escrow != nil {
		if err := tx.CreateEscrow(ctx, plan.escrow); err != nil {
			return err
		}
	}
	if plan.awardRFQID != nil {
		if err := tx.AwardRFQ(ctx, *plan.awardRFQID, *plan.supplierID); err != nil {
			return err
		}
	}
	return nil
}

// Preview describes the planned mutations for a dry run
func (p *effectPlan) Preview() map[string]interface{} {
	out := map[string]interface{}{}
	if p.acceptQuoteID != nil {
		out["quote_to_accept"] = p.acceptQuoteID.String()
	}
	if p.supplierID != nil {
		out["seller_id"] = p.supplierID.String()
	}
	if p.awardRFQID != nil {
		out["rfq_to_award"] = p.awardRFQID.String()
	}
	if p.escrow != nil {
		out["escrow_to_open"] = map[string]interface{}{
			"amount":     p.escrow.Amount,
			"currency":   p.escrow.Currency,
			"expires_at": p.escrow.ExpiresAt,
		}
	}
	return out
}
