package trades

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository is the kernel's read port onto the relational store.
// Lookups return nil, nil when the row does not exist.
type Repository interface {
	GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error)
	CountQuotes(ctx context.Context, tradeID uuid.UUID) (int, error)
	GetQuote(ctx context.Context, tradeID, quoteID uuid.UUID) (*Quote, error)
	GetAcceptedQuote(ctx context.Context, tradeID uuid.UUID) (*Quote, error)
	GetLatestContract(ctx context.Context, tradeID uuid.UUID) (*Contract, error)
	GetComplianceCase(ctx context.Context, tradeID uuid.UUID) (*ComplianceCase, error)
	GetEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error)
	GetShipment(ctx context.Context, tradeID uuid.UUID) (*Shipment, error)

	// WithinTx runs fn in one transaction; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore holds the mutations a transition may perform
type TxStore interface {
	LockEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error)
	AcceptQuote(ctx context.Context, tradeID, quoteID uuid.UUID) error
	CreateEscrow(ctx context.Context, escrow *Escrow) error
	AwardRFQ(ctx context.Context, rfqID, supplierID uuid.UUID) error
	ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, at time.Time) error
	CreatePayout(ctx context.Context, payout *Payout) error

	// UpdateTradeStatus writes the new status only if the row is still in
	// upd.From. It returns ErrStaleState when no row matched.
	UpdateTradeStatus(ctx context.Context, upd *StatusUpdate) (*Trade, error)
}

// StatusUpdate is a conditional status write with its side-channel fields
type StatusUpdate struct {
	TradeID       uuid.UUID
	From          TradeStatus
	To            TradeStatus
	MetadataPatch JSONB
	SellerID      *uuid.UUID
	TradeType     *string
	PublishedAt   *time.Time
	CompletedAt   *time.Time
	UpdatedAt     time.Time
}

// EscrowSweeper expires escrows that were never funded
type EscrowSweeper interface {
	ExpirePendingEscrows(ctx context.Context, now time.Time) (int64, error)
}

const tradeColumns = `id, status, buyer_id, seller_id, rfq_id, title, description, quantity,
	unit_price, total_amount, currency, trade_type, metadata, published_at, completed_at,
	created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error) {
	var trade Trade
	err := r.db.GetContext(ctx, &trade, "SELECT "+tradeColumns+" FROM trades WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

func (r *PostgresRepository) CountQuotes(ctx context.Context, tradeID uuid.UUID) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM quotes WHERE trade_id = $1", tradeID); err != nil {
		return 0, fmt.Errorf("failed to count quotes: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) GetQuote(ctx context.Context, tradeID, quoteID uuid.UUID) (*Quote, error) {
	var quote Quote
	err := r.db.GetContext(ctx, &quote, `
		SELECT id, trade_id, supplier_id, status, unit_price, currency, created_at
		FROM quotes WHERE trade_id = $1 AND id = $2`, tradeID, quoteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &quote, nil
}

func (r *PostgresRepository) GetAcceptedQuote(ctx context.Context, tradeID uuid.UUID) (*Quote, error) {
	var quote Quote
	err := r.db.GetContext(ctx, &quote, `
		SELECT id, trade_id, supplier_id, status, unit_price, currency, created_at
		FROM quotes WHERE trade_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT 1`, tradeID, QuoteAccepted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accepted quote: %w", err)
	}
	return &quote, nil
}

func (r *PostgresRepository) GetLatestContract(ctx context.Context, tradeID uuid.UUID) (*Contract, error) {
	var contract Contract
	err := r.db.GetContext(ctx, &contract, `
		SELECT id, trade_id, version, status, created_at
		FROM contracts WHERE trade_id = $1
		ORDER BY version DESC LIMIT 1`, tradeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest contract: %w", err)
	}
	return &contract, nil
}

func (r *PostgresRepository) GetComplianceCase(ctx context.Context, tradeID uuid.UUID) (*ComplianceCase, error) {
	var cc ComplianceCase
	err := r.db.GetContext(ctx, &cc, `
		SELECT id, trade_id, state, updated_at
		FROM compliance_cases WHERE trade_id = $1
		ORDER BY updated_at DESC LIMIT 1`, tradeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance case: %w", err)
	}
	return &cc, nil
}

func (r *PostgresRepository) GetEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error) {
	return getEscrow(ctx, r.db, tradeID, false)
}

func (r *PostgresRepository) GetShipment(ctx context.Context, tradeID uuid.UUID) (*Shipment, error) {
	var shipment Shipment
	err := r.db.GetContext(ctx, &shipment, `
		SELECT id, trade_id, status, updated_at
		FROM shipments WHERE trade_id = $1
		ORDER BY updated_at DESC LIMIT 1`, tradeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	return &shipment, nil
}

func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExpirePendingEscrows marks unfunded escrows past their expiry as expired
func (r *PostgresRepository) ExpirePendingEscrows(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE escrows SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at < $2`,
		EscrowExpired, now, EscrowPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire escrows: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func getEscrow(ctx context.Context, q sqlx.QueryerContext, tradeID uuid.UUID, forUpdate bool) (*Escrow, error) {
	query := `
		SELECT id, trade_id, status, amount, currency, balance, expires_at, created_at, updated_at
		FROM escrows WHERE trade_id = $1
		ORDER BY created_at DESC LIMIT 1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var escrow Escrow
	err := sqlx.GetContext(ctx, q, &escrow, query, tradeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}
	return &escrow, nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) LockEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error) {
	return getEscrow(ctx, t.tx, tradeID, true)
}

func (t *postgresTx) AcceptQuote(ctx context.Context, tradeID, quoteID uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE quotes SET status = $1 WHERE trade_id = $2 AND id = $3",
		QuoteAccepted, tradeID, quoteID)
	if err != nil {
		return fmt.Errorf("failed to accept quote: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("quote %s not found for trade %s", quoteID, tradeID)
	}

	_, err = t.tx.ExecContext(ctx,
		"UPDATE quotes SET status = $1 WHERE trade_id = $2 AND id <> $3 AND status <> $1",
		QuoteRejected, tradeID, quoteID)
	if err != nil {
		return fmt.Errorf("failed to reject competing quotes: %w", err)
	}
	return nil
}

func (t *postgresTx) CreateEscrow(ctx context.Context, escrow *Escrow) error {
	query := `
		INSERT INTO escrows (
			id, trade_id, status, amount, currency, balance, expires_at, created_at, updated_at
		) VALUES (
			:id, :trade_id, :status, :amount, :currency, :balance, :expires_at, :created_at, :updated_at
		)`
	if _, err := t.tx.NamedExecContext(ctx, query, escrow); err != nil {
		return fmt.Errorf("failed to create escrow: %w", err)
	}
	return nil
}

func (t *postgresTx) AwardRFQ(ctx context.Context, rfqID, supplierID uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE rfqs SET status = $1, awarded_supplier_id = $2, updated_at = now() WHERE id = $3",
		RFQAwarded, supplierID, rfqID)
	if err != nil {
		return fmt.Errorf("failed to award rfq: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("rfq %s not found", rfqID)
	}
	return nil
}

func (t *postgresTx) ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, at time.Time) error {
	result, err := t.tx.ExecContext(ctx,
		"UPDATE escrows SET status = $1, balance = 0, updated_at = $2 WHERE id = $3 AND status = $4",
		EscrowReleased, at, escrowID, EscrowFunded)
	if err != nil {
		return fmt.Errorf("failed to release escrow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.New("escrow is no longer funded")
	}
	return nil
}

func (t *postgresTx) CreatePayout(ctx context.Context, payout *Payout) error {
	query := `
		INSERT INTO payouts (
			id, trade_id, escrow_id, payee_id, amount, currency, reference, created_at
		) VALUES (
			:id, :trade_id, :escrow_id, :payee_id, :amount, :currency, :reference, :created_at
		)`
	if _, err := t.tx.NamedExecContext(ctx, query, payout); err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateTradeStatus(ctx context.Context, upd *StatusUpdate) (*Trade, error) {
	var trade Trade
	err := t.tx.GetContext(ctx, &trade, `
		UPDATE trades SET
			status = $3,
			metadata = COALESCE(metadata, '{}'::jsonb) || $4::jsonb,
			updated_at = $5,
			seller_id = COALESCE($6, seller_id),
			trade_type = COALESCE($7, trade_type),
			published_at = COALESCE($8, published_at),
			completed_at = COALESCE($9, completed_at)
		WHERE id = $1 AND status = $2
		RETURNING `+tradeColumns,
		upd.TradeID, upd.From, upd.To, upd.MetadataPatch, upd.UpdatedAt,
		upd.SellerID, upd.TradeType, upd.PublishedAt, upd.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update trade status: %w", err)
	}
	return &trade, nil
}
