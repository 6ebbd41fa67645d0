package trades

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const codeInvalidMetadata = "invalid_metadata"

var metadataValidator = validator.New()

// TransitionParams is the typed metadata accepted for one target state
type TransitionParams interface {
	// Patch returns the fields merged into the trade's metadata on success
	Patch() JSONB
}

// NoParams is used by targets that accept no metadata
type NoParams struct{}

func (NoParams) Patch() JSONB { return JSONB{} }

// ContractParams selects the winning quote when entering contracted
type ContractParams struct {
	SelectedQuoteID *uuid.UUID `json:"selectedQuoteId"`
	SupplierID      *uuid.UUID `json:"supplierId"`
}

func (p ContractParams) Patch() JSONB {
	patch := JSONB{}
	if p.SelectedQuoteID != nil {
		patch["selectedQuoteId"] = p.SelectedQuoteID.String()
	}
	if p.SupplierID != nil {
		patch["supplierId"] = p.SupplierID.String()
	}
	return patch
}

// EscrowParams overrides the escrow opened when entering escrow_required.
// A non-positive amount is rejected by the side effect, not here.
type EscrowParams struct {
	EscrowAmount  *float64 `json:"escrowAmount"`
	Currency      string   `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentMethod string   `json:"paymentMethod" validate:"omitempty,oneof=wire card ach letter_of_credit"`
}

func (p EscrowParams) Patch() JSONB {
	patch := JSONB{}
	if p.EscrowAmount != nil {
		patch["escrowAmount"] = *p.EscrowAmount
	}
	if p.Currency != "" {
		patch["currency"] = strings.ToUpper(p.Currency)
	}
	if p.PaymentMethod != "" {
		patch["paymentMethod"] = p.PaymentMethod
	}
	return patch
}

// AcceptanceParams carries the buyer's explicit acceptance
type AcceptanceParams struct {
	BuyerAccepted bool `json:"buyerAccepted"`
}

func (p AcceptanceParams) Patch() JSONB {
	return JSONB{"buyerAccepted": p.BuyerAccepted}
}

// DisputeParams records why a party opened a dispute
type DisputeParams struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (p DisputeParams) Patch() JSONB {
	if p.Reason == "" {
		return JSONB{}
	}
	return JSONB{"disputeReason": p.Reason}
}

// SettlementParams qualifies a settlement request
type SettlementParams struct {
	BuyerRelease    bool   `json:"buyerRelease"`
	PayoutReference string `json:"payoutReference" validate:"max=128"`
}

func (p SettlementParams) Patch() JSONB {
	patch := JSONB{}
	if p.BuyerRelease {
		patch["buyerRelease"] = true
	}
	if p.PayoutReference != "" {
		patch["payoutReference"] = p.PayoutReference
	}
	return patch
}

// ParseMetadata decodes raw against the variant for target. Unknown fields
// and invalid values are request errors.
func ParseMetadata(target TradeStatus, raw json.RawMessage) (TransitionParams, error) {
	switch target {
	case StatusContracted:
		return decodeParams[ContractParams](target, raw)
	case StatusEscrowRequired:
		return decodeParams[EscrowParams](target, raw)
	case StatusAccepted:
		return decodeParams[AcceptanceParams](target, raw)
	case StatusDisputed:
		return decodeParams[DisputeParams](target, raw)
	case StatusSettled:
		return decodeParams[SettlementParams](target, raw)
	default:
		return decodeParams[NoParams](target, raw)
	}
}

func decodeParams[P TransitionParams](target TradeStatus, raw json.RawMessage) (TransitionParams, error) {
	var params P
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return params, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&params); err != nil {
		return nil, badRequest(codeInvalidMetadata, "invalid metadata for %s: %v", target, err)
	}

	if err := metadataValidator.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, badRequest(codeInvalidMetadata, "invalid metadata for %s: field %s failed %s",
				target, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, badRequest(codeInvalidMetadata, "invalid metadata for %s: %v", target, err)
	}
	return params, nil
}
