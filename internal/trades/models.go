package trades

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// TradeStatus is one state of the trade lifecycle
type TradeStatus string

const (
	StatusDraft           TradeStatus = "draft"
	StatusRFQOpen         TradeStatus = "rfq_open"
	StatusQuoted          TradeStatus = "quoted"
	StatusContracted      TradeStatus = "contracted"
	StatusEscrowRequired  TradeStatus = "escrow_required"
	StatusEscrowFunded    TradeStatus = "escrow_funded"
	StatusProduction      TradeStatus = "production"
	StatusPickupScheduled TradeStatus = "pickup_scheduled"
	StatusInTransit       TradeStatus = "in_transit"
	StatusDelivered       TradeStatus = "delivered"
	StatusAccepted        TradeStatus = "accepted"
	StatusSettled         TradeStatus = "settled"
	StatusDisputed        TradeStatus = "disputed"
	StatusClosed          TradeStatus = "closed"
)

// AllStatuses lists every state in lifecycle order. The order is informational.
var AllStatuses = []TradeStatus{
	StatusDraft, StatusRFQOpen, StatusQuoted, StatusContracted, StatusEscrowRequired,
	StatusEscrowFunded, StatusProduction, StatusPickupScheduled, StatusInTransit,
	StatusDelivered, StatusAccepted, StatusSettled, StatusDisputed, StatusClosed,
}

// Role is the capacity in which a caller acts on a trade
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleSeller    Role = "seller"
	RoleLogistics Role = "logistics"
	RoleAdmin     Role = "admin"
	RoleUnknown   Role = "unknown"
)

// Outcome is the kernel's verdict on a transition attempt
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeBlock Outcome = "BLOCK"
)

// Machine-readable reason codes
const (
	ReasonActorNotAuthorized   = "actor_not_authorized"
	ReasonRoleNotAuthorized    = "role_not_authorized"
	ReasonIllegalTransition    = "illegal_transition"
	ReasonTerminalState        = "terminal_state"
	ReasonRFQMissingFields     = "rfq_missing_fields"
	ReasonNoQuotes             = "no_quotes"
	ReasonQuoteNotSelected     = "quote_not_selected"
	ReasonContractMissing      = "contract_missing"
	ReasonContractNotSigned    = "contract_not_signed"
	ReasonHSCodeMissing        = "hs_code_missing"
	ReasonComplianceIncomplete = "compliance_incomplete"
	ReasonEscrowUnfunded       = "escrow_unfunded"
	ReasonShipmentNotDelivered = "shipment_not_delivered"
	ReasonBuyerNotAccepted     = "buyer_not_accepted"
	ReasonEscrowNotReady       = "escrow_not_ready"
	ReasonSideEffectFailed     = "side_effect_failed"
	ReasonSettlementFailed     = "settlement_failed"
	ReasonUpdateFailed         = "update_failed"
)

// Audit event types
const (
	EventTransitionAllowed = "transition.allowed"
	EventTransitionBlocked = "transition.blocked"
	EventTransitionFailed  = "transition.failed"
)

// Quote, escrow, contract and compliance states read by the kernel
const (
	QuotePending  = "pending"
	QuoteAccepted = "accepted"
	QuoteRejected = "rejected"

	ContractDraft  = "draft"
	ContractSigned = "signed"

	EscrowPending  = "pending"
	EscrowFunded   = "funded"
	EscrowReleased = "released"
	EscrowExpired  = "expired"

	ComplianceApproved = "approved"

	ShipmentDelivered = "delivered"

	RFQAwarded = "awarded"
)

// Trade is the central lifecycle entity
type Trade struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Status      TradeStatus `json:"status" db:"status"`
	BuyerID     uuid.UUID   `json:"buyer_id" db:"buyer_id"`
	SellerID    *uuid.UUID  `json:"seller_id,omitempty" db:"seller_id"`
	RFQID       *uuid.UUID  `json:"rfq_id,omitempty" db:"rfq_id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Quantity    *float64    `json:"quantity,omitempty" db:"quantity"`
	UnitPrice   *float64    `json:"unit_price,omitempty" db:"unit_price"`
	TotalAmount *float64    `json:"total_amount,omitempty" db:"total_amount"`
	Currency    string      `json:"currency" db:"currency"`
	TradeType   string      `json:"trade_type" db:"trade_type"`
	Metadata    JSONB       `json:"metadata" db:"metadata"`
	PublishedAt *time.Time  `json:"published_at,omitempty" db:"published_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// LogisticsCompanyID returns the logistics organization recorded in metadata, if any
func (t *Trade) LogisticsCompanyID() (uuid.UUID, bool) {
	for _, key := range []string{"logisticsCompanyId", "logistics_company_id"} {
		if raw, ok := t.Metadata[key].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				return id, true
			}
		}
	}
	return uuid.Nil, false
}

// HSCode returns the harmonized system code recorded in metadata
func (t *Trade) HSCode() string {
	for _, key := range []string{"hsCode", "hs_code"} {
		if code, ok := t.Metadata[key].(string); ok && code != "" {
			return code
		}
	}
	return ""
}

// Quote is a supplier's offer against a trade
type Quote struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TradeID    uuid.UUID `json:"trade_id" db:"trade_id"`
	SupplierID uuid.UUID `json:"supplier_id" db:"supplier_id"`
	Status     string    `json:"status" db:"status"`
	UnitPrice  float64   `json:"unit_price" db:"unit_price"`
	Currency   string    `json:"currency" db:"currency"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Contract is one version of a trade contract
type Contract struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TradeID   uuid.UUID `json:"trade_id" db:"trade_id"`
	Version   int       `json:"version" db:"version"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Escrow holds buyer funds until settlement
type Escrow struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TradeID   uuid.UUID  `json:"trade_id" db:"trade_id"`
	Status    string     `json:"status" db:"status"`
	Amount    float64    `json:"amount" db:"amount"`
	Currency  string     `json:"currency" db:"currency"`
	Balance   float64    `json:"balance" db:"balance"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ComplianceCase is the screening record gating escrow
type ComplianceCase struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TradeID   uuid.UUID `json:"trade_id" db:"trade_id"`
	State     string    `json:"state" db:"state"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Shipment tracks physical delivery
type Shipment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TradeID   uuid.UUID `json:"trade_id" db:"trade_id"`
	Status    string    `json:"status" db:"status"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Payout is the ledger row written by settlement
type Payout struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	TradeID   uuid.UUID  `json:"trade_id" db:"trade_id"`
	EscrowID  uuid.UUID  `json:"escrow_id" db:"escrow_id"`
	PayeeID   *uuid.UUID `json:"payee_id,omitempty" db:"payee_id"`
	Amount    float64    `json:"amount" db:"amount"`
	Currency  string     `json:"currency" db:"currency"`
	Reference string     `json:"reference" db:"reference"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// TradeEvent is one immutable audit row per transition attempt
type TradeEvent struct {
	ID              uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid"`
	TradeID         uuid.UUID      `json:"trade_id" gorm:"type:uuid;not null;index"`
	EventType       string         `json:"event_type" gorm:"not null"`
	StatusFrom      TradeStatus    `json:"status_from" gorm:"type:text"`
	StatusTo        TradeStatus    `json:"status_to" gorm:"type:text"`
	ActorUserID     uuid.UUID      `json:"actor_user_id" gorm:"type:uuid"`
	ActorRole       Role           `json:"actor_role" gorm:"type:text"`
	Decision        Outcome        `json:"decision" gorm:"type:text;not null"`
	ReasonCode      string         `json:"reason_code,omitempty"`
	RequiredActions pq.StringArray `json:"required_actions" gorm:"type:text[]"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	CreatedAt       time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName pins the gorm table name
func (TradeEvent) TableName() string { return "trade_events" }

// JSONB is a wrapper for JSONB columns
type JSONB map[string]interface{}

// Value implements driver.Valuer
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Clone returns a shallow copy
func (j JSONB) Clone() JSONB {
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}
