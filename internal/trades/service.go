package trades

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradelane/trade-portal/trade-portal-backend/internal/auth"
	"tradelane/trade-portal/trade-portal-backend/internal/notifications"
)

// ErrForbidden is returned when the caller has no role on the trade
var ErrForbidden = errors.New("caller is not a party to this trade")

const reasonInternalError = "internal_error"

// TransitionRequest is the body submitted by the UI
type TransitionRequest struct {
	TradeID   string          `json:"tradeId"`
	NextState string          `json:"nextState"`
	Metadata  json.RawMessage `json:"metadata"`
	DryRun    bool            `json:"dry_run"`
}

// TransitionResult is the kernel's response body
type TransitionResult struct {
	Success bool `json:"success"`
	Decision
	NextState    TradeStatus            `json:"next_state,omitempty"`
	DryRun       bool                   `json:"dry_run,omitempty"`
	Consequences map[string]interface{} `json:"consequences,omitempty"`
	Trade        *Trade                 `json:"trade,omitempty"`
	Settlement   *SettlementResult      `json:"settlement,omitempty"`
}

// ServiceConfig tunes kernel policy
type ServiceConfig struct {
	EscrowTTL            time.Duration
	AllowBuyerSettlement bool
}

// DefaultServiceConfig returns the production defaults
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{EscrowTTL: 30 * 24 * time.Hour}
}

// Service is the trade lifecycle kernel
type Service struct {
	repo       Repository
	machine    *LifecycleMachine
	guard      *RoleGuard
	conditions *ConditionValidator
	effects    *SideEffectExecutor
	compound   map[TradeStatus]CompoundTransition
	audit      *AuditLogger
	notifier   notifications.Notifier
	config     ServiceConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires the kernel components
func NewService(repo Repository, audit *AuditLogger, notifier notifications.Notifier, config ServiceConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		machine:    NewLifecycleMachine(),
		guard:      NewRoleGuard(config.AllowBuyerSettlement),
		conditions: NewConditionValidator(repo),
		effects:    NewSideEffectExecutor(repo, config.EscrowTTL),
		compound: map[TradeStatus]CompoundTransition{
			StatusSettled: NewSettlementExecutor(repo),
		},
		audit:    audit,
		notifier: notifier,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Transition evaluates and, unless dry-running, executes a transition.
// Business denials come back as a BLOCK result with a nil error.
func (s *Service) Transition(ctx context.Context, caller auth.Caller, req TransitionRequest) (*TransitionResult, error) {
	tradeID, target, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	trade, err := s.repo.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}

	if target == "" {
		next, ok := s.machine.InferNext(trade.Status)
		if !ok {
			return &TransitionResult{
				Decision: block(ReasonTerminalState, fmt.Sprintf("trade is in terminal state %s", trade.Status)),
				DryRun:   true,
			}, nil
		}
		target = next
	}

	role := ResolveRole(caller, trade)
	attempt := &Attempt{
		Trade:  trade,
		Caller: caller,
		Role:   role,
		From:   trade.Status,
		To:     target,
	}

	// metadata is only decoded once the caller may ask for this pair at all
	var params TransitionParams
	decision := s.gate(trade, role, target)
	if decision.Allowed() {
		params, err = ParseMetadata(target, req.Metadata)
		if err != nil {
			if !req.DryRun {
				attempt.Decision = block(codeInvalidMetadata, err.Error())
				attempt.EventType = EventTransitionBlocked
				s.record(ctx, attempt)
			}
			return nil, err
		}
		attempt.Params = params

		decision, err = s.check(ctx, trade, role, target, params)
		if err != nil {
			if req.DryRun {
				return nil, fmt.Errorf("failed to evaluate transition: %w", err)
			}
			return nil, s.fail(ctx, attempt, reasonInternalError, err)
		}
	}
	attempt.Decision = decision

	s.logger.Info("Transition evaluated",
		zap.String("trade_id", trade.ID.String()),
		zap.String("from", string(trade.Status)),
		zap.String("to", string(target)),
		zap.String("role", string(role)),
		zap.String("decision", string(decision.Outcome)),
		zap.String("reason_code", decision.ReasonCode),
		zap.Bool("dry_run", req.DryRun))

	if req.DryRun {
		return s.preview(ctx, trade, target, params, decision)
	}

	if !decision.Allowed() {
		attempt.EventType = EventTransitionBlocked
		s.record(ctx, attempt)
		return &TransitionResult{Decision: decision, NextState: target}, nil
	}

	return s.execute(ctx, attempt)
}

func (s *Service) validateRequest(req TransitionRequest) (uuid.UUID, TradeStatus, error) {
	if strings.TrimSpace(req.TradeID) == "" {
		return uuid.Nil, "", &RequestError{Code: "missing_trade_id", Err: ErrMissingTradeID}
	}
	tradeID, err := uuid.Parse(strings.TrimSpace(req.TradeID))
	if err != nil {
		return uuid.Nil, "", badRequest("invalid_trade_id", "tradeId %q is not a valid id", req.TradeID)
	}

	target := TradeStatus(strings.TrimSpace(req.NextState))
	if target == "" {
		if !req.DryRun {
			return uuid.Nil, "", &RequestError{Code: "missing_next_state", Err: ErrMissingNextState}
		}
		return tradeID, "", nil
	}
	if !s.machine.IsKnown(target) {
		return uuid.Nil, "", badRequest("invalid_next_state", "nextState %q is not a known state", target)
	}
	return tradeID, target, nil
}

// gate runs the checks that need no metadata: actor, role, legality
func (s *Service) gate(trade *Trade, role Role, target TradeStatus) Decision {
	if role == RoleUnknown {
		return block(ReasonActorNotAuthorized, "caller is not a party to this trade")
	}
	if !s.guard.Allows(role, target) {
		return block(ReasonRoleNotAuthorized,
			fmt.Sprintf("role %s may not move a trade to %s", role, target))
	}
	if !s.machine.CanTransition(trade.Status, target) {
		return block(ReasonIllegalTransition,
			fmt.Sprintf("cannot move a trade from %s to %s", trade.Status, target))
	}
	return allow()
}

// check runs the metadata-dependent role rule and the entry conditions
func (s *Service) check(ctx context.Context, trade *Trade, role Role, target TradeStatus, params TransitionParams) (Decision, error) {
	if target == StatusSettled && role == RoleBuyer {
		if p, _ := params.(SettlementParams); !p.BuyerRelease {
			return block(ReasonRoleNotAuthorized,
				"buyer settlement requires an explicit buyerRelease", "confirm_buyer_release"), nil
		}
	}
	return s.conditions.Check(ctx, trade, target, params)
}

func (s *Service) preview(ctx context.Context, trade *Trade, target TradeStatus, params TransitionParams, decision Decision) (*TransitionResult, error) {
	result := &TransitionResult{
		Success:   decision.Allowed(),
		Decision:  decision,
		NextState: target,
		DryRun:    true,
	}
	if !decision.Allowed() {
		return result, nil
	}

	consequences := map[string]interface{}{
		"status_from": trade.Status,
		"status_to":   target,
	}
	if compound, ok := s.compound[target]; ok {
		extra, err := compound.Preview(ctx, trade, params)
		if err != nil {
			return nil, fmt.Errorf("failed to preview transition: %w", err)
		}
		for k, v := range extra {
			consequences[k] = v
		}
	} else {
		plan, err := s.effects.Plan(ctx, trade, target, params, s.now())
		if err != nil {
			// execute fails the same way
			result.Success = false
			result.Decision = block(ReasonSideEffectFailed, err.Error())
			consequences["side_effect_error"] = err.Error()
		} else {
			for k, v := range plan.Preview() {
				consequences[k] = v
			}
		}
	}
	if target == StatusClosed || target == StatusSettled {
		consequences["completes_trade"] = true
	}
	result.Consequences = consequences
	return result, nil
}

// stageError tags a failure inside the transaction with its reason code
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func (s *Service) execute(ctx context.Context, attempt *Attempt) (*TransitionResult, error) {
	trade := attempt.Trade
	now := s.now()
	update := s.statusUpdate(trade, attempt.To, attempt.Params, now)

	var updated *Trade
	var settlement *SettlementResult

	if compound, ok := s.compound[attempt.To]; ok {
		err := s.repo.WithinTx(ctx, func(tx TxStore) error {
			t, res, err := compound.Execute(ctx, tx, CompoundRequest{
				Trade:  trade,
				Target: attempt.To,
				Params: attempt.Params,
				Update: update,
				Now:    now,
			})
			if err != nil {
				return err
			}
			updated = t
			if sr, ok := res.(*SettlementResult); ok {
				settlement = sr
			}
			return nil
		})
		if err != nil {
			return s.executionFailed(ctx, attempt, ReasonSettlementFailed, err)
		}
	} else {
		plan, err := s.effects.Plan(ctx, trade, attempt.To, attempt.Params, now)
		if err != nil {
			return nil, s.fail(ctx, attempt, ReasonSideEffectFailed, err)
		}
		if plan.supplierID != nil {
			update.SellerID = plan.supplierID
		}
		if plan.tradeType != nil {
			update.TradeType = plan.tradeType
		}

		err = s.repo.WithinTx(ctx, func(tx TxStore) error {
			if err := s.effects.Apply(ctx, tx, trade, plan); err != nil {
				return &stageError{code: ReasonSideEffectFailed, err: err}
			}
			t, err := tx.UpdateTradeStatus(ctx, update)
			if err != nil {
				return err
			}
			updated = t
			return nil
		})
		if err != nil {
			code := ReasonUpdateFailed
			var se *stageError
			if errors.As(err, &se) {
				code = se.code
			}
			return s.executionFailed(ctx, attempt, code, err)
		}
	}

	attempt.Decision = allow()
	attempt.EventType = EventTransitionAllowed
	attempt.Settlement = settlement
	s.record(ctx, attempt)

	s.notifier.TradeTransitioned(notice(attempt, updated, now))

	return &TransitionResult{
		Success:    true,
		Decision:   attempt.Decision,
		NextState:  attempt.To,
		Trade:      updated,
		Settlement: settlement,
	}, nil
}

// executionFailed turns a lost race into a BLOCK and anything else into a KernelError
func (s *Service) executionFailed(ctx context.Context, attempt *Attempt, code string, err error) (*TransitionResult, error) {
	if errors.Is(err, ErrStaleState) {
		attempt.Decision = block(ReasonIllegalTransition,
			fmt.Sprintf("trade is no longer in %s; it changed while the request was processed", attempt.From))
		attempt.EventType = EventTransitionBlocked
		s.record(ctx, attempt)
		return &TransitionResult{Decision: attempt.Decision, NextState: attempt.To}, nil
	}
	return nil, s.fail(ctx, attempt, code, err)
}

func (s *Service) fail(ctx context.Context, attempt *Attempt, code string, err error) error {
	s.logger.Error("Transition failed",
		zap.Error(err),
		zap.String("trade_id", attempt.Trade.ID.String()),
		zap.String("to", string(attempt.To)),
		zap.String("reason_code", code))

	attempt.Decision = block(code, fmt.Sprintf("transition to %s failed", attempt.To))
	attempt.EventType = EventTransitionFailed
	attempt.Err = err
	s.record(ctx, attempt)

	return &KernelError{
		Code: code,
		Result: &TransitionResult{
			Decision:  attempt.Decision,
			NextState: attempt.To,
		},
		Err: err,
	}
}

// record appends the audit event. The outcome is already decided, so a
// store failure is logged rather than changing the response.
func (s *Service) record(ctx context.Context, attempt *Attempt) {
	if _, err := s.audit.Record(ctx, attempt); err != nil {
		s.logger.Error("Failed to record trade event",
			zap.Error(err),
			zap.String("trade_id", attempt.Trade.ID.String()),
			zap.String("decision", string(attempt.Decision.Outcome)),
			zap.String("reason_code", attempt.Decision.ReasonCode))
	}
}

func (s *Service) statusUpdate(trade *Trade, target TradeStatus, params TransitionParams, now time.Time) *StatusUpdate {
	patch := params.Patch()
	patch["previous_state"] = string(trade.Status)

	update := &StatusUpdate{
		TradeID:       trade.ID,
		From:          trade.Status,
		To:            target,
		MetadataPatch: patch,
		UpdatedAt:     now,
	}
	switch target {
	case StatusRFQOpen:
		update.PublishedAt = &now
	case StatusClosed, StatusSettled:
		update.CompletedAt = &now
	}
	return update
}

// History returns the audit trail of a trade to any party on it
func (s *Service) History(ctx context.Context, caller auth.Caller, tradeID uuid.UUID) ([]TradeEvent, error) {
	trade, err := s.repo.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if ResolveRole(caller, trade) == RoleUnknown {
		return nil, ErrForbidden
	}
	return s.audit.History(ctx, tradeID)
}

func notice(attempt *Attempt, updated *Trade, at time.Time) notifications.TransitionNotice {
	n := notifications.TransitionNotice{
		TradeID:     attempt.Trade.ID.String(),
		From:        string(attempt.From),
		To:          string(attempt.To),
		ActorUserID: attempt.Caller.UserID.String(),
		ActorRole:   string(attempt.Role),
		BuyerID:     attempt.Trade.BuyerID.String(),
		OccurredAt:  at,
	}
	if updated != nil && updated.SellerID != nil {
		n.SellerID = updated.SellerID.String()
	}
	return n
}
