package trades

import (
	"context"
	"fmt"
	"strings"
)

// Decision is the structured verdict returned to callers
type Decision struct {
	Outcome         Outcome  `json:"decision"`
	Reason          string   `json:"reason,omitempty"`
	ReasonCode      string   `json:"reason_code,omitempty"`
	RequiredActions []string `json:"required_actions,omitempty"`
}

// Allowed reports whether the decision permits the transition
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

func allow() Decision { return Decision{Outcome: OutcomeAllow} }

func block(code, reason string, actions ...string) Decision {
	return Decision{
		Outcome:         OutcomeBlock,
		Reason:          reason,
		ReasonCode:      code,
		RequiredActions: actions,
	}
}

// ConditionValidator checks the domain preconditions of a target state
type ConditionValidator struct {
	repo Repository
}

// NewConditionValidator creates a validator reading from repo
func NewConditionValidator(repo Repository) *ConditionValidator {
	return &ConditionValidator{repo: repo}
}

// Check returns an ALLOW decision when every precondition of target holds.
// Errors are store failures, never business denials.
func (v *ConditionValidator) Check(ctx context.Context, trade *Trade, target TradeStatus, params TransitionParams) (Decision, error) {
	switch target {
	case StatusRFQOpen:
		return v.checkRFQFields(trade), nil
	case StatusQuoted:
		return v.checkQuotes(ctx, trade)
	case StatusContracted:
		return v.checkContracting(ctx, trade, params)
	case StatusEscrowRequired:
		return v.checkEscrowReadiness(ctx, trade)
	case StatusEscrowFunded:
		return v.checkEscrowFunded(ctx, trade, ReasonEscrowUnfunded, "escrow has not been funded")
	case StatusDelivered:
		return v.checkShipment(ctx, trade)
	case StatusAccepted:
		if p, ok := params.(AcceptanceParams); ok && p.BuyerAccepted {
			return allow(), nil
		}
		return block(ReasonBuyerNotAccepted, "buyer acceptance was not confirmed", "confirm_buyer_acceptance"), nil
	case StatusSettled:
		return v.checkEscrowFunded(ctx, trade, ReasonEscrowNotReady, "escrow is not funded and cannot be released")
	default:
		return allow(), nil
	}
}

func (v *ConditionValidator) checkRFQFields(trade *Trade) Decision {
	var missing, actions []string
	if strings.TrimSpace(trade.Title) == "" {
		missing = append(missing, "title")
		actions = append(actions, "provide_title")
	}
	if strings.TrimSpace(trade.Description) == "" {
		missing = append(missing, "description")
		actions = append(actions, "provide_description")
	}
	if trade.Quantity == nil || *trade.Quantity <= 0 {
		missing = append(missing, "quantity")
		actions = append(actions, "provide_quantity")
	}
	if len(missing) > 0 {
		return block(ReasonRFQMissingFields,
			fmt.Sprintf("RFQ is missing required fields: %s", strings.Join(missing, ", ")),
			actions...)
	}
	return allow()
}

func (v *ConditionValidator) checkQuotes(ctx context.Context, trade *Trade) (Decision, error) {
	count, err := v.repo.CountQuotes(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if count == 0 {
		return block(ReasonNoQuotes, "no quotes have been submitted for this trade", "await_supplier_quotes"), nil
	}
	return allow(), nil
}

func (v *ConditionValidator) checkContracting(ctx context.Context, trade *Trade, params TransitionParams) (Decision, error) {
	p, _ := params.(ContractParams)
	if p.SelectedQuoteID != nil {
		quote, err := v.repo.GetQuote(ctx, trade.ID, *p.SelectedQuoteID)
		if err != nil {
			return Decision{}, err
		}
		if quote == nil {
			return block(ReasonQuoteNotSelected, "selected quote does not belong to this trade", "select_quote"), nil
		}
	} else {
		accepted, err := v.repo.GetAcceptedQuote(ctx, trade.ID)
		if err != nil {
			return Decision{}, err
		}
		if accepted == nil {
			return block(ReasonQuoteNotSelected, "no quote has been selected", "select_quote"), nil
		}
	}

	contract, err := v.repo.GetLatestContract(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if contract == nil {
		return block(ReasonContractMissing, "no contract exists for this trade", "create_contract"), nil
	}
	return allow(), nil
}

func (v *ConditionValidator) checkEscrowReadiness(ctx context.Context, trade *Trade) (Decision, error) {
	contract, err := v.repo.GetLatestContract(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if contract == nil || contract.Status != ContractSigned {
		return block(ReasonContractNotSigned, "latest contract version is not signed", "sign_contract"), nil
	}

	if trade.HSCode() == "" {
		return block(ReasonHSCodeMissing, "trade has no HS code", "provide_hs_code"), nil
	}

	cc, err := v.repo.GetComplianceCase(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if cc == nil || cc.State != ComplianceApproved {
		return block(ReasonComplianceIncomplete, "compliance review is not approved", "complete_compliance_review"), nil
	}
	return allow(), nil
}

func (v *ConditionValidator) checkEscrowFunded(ctx context.Context, trade *Trade, code, reason string) (Decision, error) {
	escrow, err := v.repo.GetEscrow(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if escrow == nil || escrow.Status != EscrowFunded {
		return block(code, reason, "fund_escrow"), nil
	}
	return allow(), nil
}

func (v *ConditionValidator) checkShipment(ctx context.Context, trade *Trade) (Decision, error) {
	shipment, err := v.repo.GetShipment(ctx, trade.ID)
	if err != nil {
		return Decision{}, err
	}
	if shipment == nil || shipment.Status != ShipmentDelivered {
		return block(ReasonShipmentNotDelivered, "shipment has not been delivered", "confirm_delivery"), nil
	}
	return allow(), nil
}
