package trades

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errInjected = errors.New("injected failure")

// memState is the full store content; WithinTx works on a copy and swaps it
// in on commit.
type memState struct {
	trades     map[uuid.UUID]Trade
	quotes     map[uuid.UUID][]Quote
	contracts  map[uuid.UUID][]Contract
	compliance map[uuid.UUID]ComplianceCase
	escrows    map[uuid.UUID]Escrow
	shipments  map[uuid.UUID]Shipment
	rfqs       map[uuid.UUID]string
	rfqWinners map[uuid.UUID]uuid.UUID
	payouts    []Payout
}

func newMemState() *memState {
	return &memState{
		trades:     map[uuid.UUID]Trade{},
		quotes:     map[uuid.UUID][]Quote{},
		contracts:  map[uuid.UUID][]Contract{},
		compliance: map[uuid.UUID]ComplianceCase{},
		escrows:    map[uuid.UUID]Escrow{},
		shipments:  map[uuid.UUID]Shipment{},
		rfqs:       map[uuid.UUID]string{},
		rfqWinners: map[uuid.UUID]uuid.UUID{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	for k, v := range s.trades {
		v.Metadata = v.Metadata.Clone()
		out.trades[k] = v
	}
	for k, v := range s.quotes {
		out.quotes[k] = append([]Quote(nil), v...)
	}
	for k, v := range s.contracts {
		out.contracts[k] = append([]Contract(nil), v...)
	}
	for k, v := range s.compliance {
		out.compliance[k] = v
	}
	for k, v := range s.escrows {
		out.escrows[k] = v
	}
	for k, v := range s.shipments {
		out.shipments[k] = v
	}
	for k, v := range s.rfqs {
		out.rfqs[k] = v
	}
	for k, v := range s.rfqWinners {
		out.rfqWinners[k] = v
	}
	out.payouts = append([]Payout(nil), s.payouts...)
	return out
}

// memRepository implements Repository in memory with injectable failures
type memRepository struct {
	mu    sync.Mutex
	state *memState

	// fail maps an operation name to the error it returns
	fail map[string]error
	// beforeUpdate runs inside the transaction just before the status write
	beforeUpdate func(s *memState)
}

func newMemRepository() *memRepository {
	return &memRepository{state: newMemState(), fail: map[string]error{}}
}

func (r *memRepository) injected(op string) error {
	return r.fail[op]
}

func (r *memRepository) addTrade(t Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Metadata == nil {
		t.Metadata = JSONB{}
	}
	r.state.trades[t.ID] = t
}

func (r *memRepository) trade(id uuid.UUID) Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.trades[id]
}

func (r *memRepository) escrow(tradeID uuid.UUID) (Escrow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.escrows[tradeID]
	return e, ok
}

func (r *memRepository) payouts() []Payout {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payout(nil), r.state.payouts...)
}

func (r *memRepository) GetTrade(ctx context.Context, id uuid.UUID) (*Trade, error) {
	if err := r.injected("GetTrade"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.state.trades[id]
	if !ok {
		return nil, nil
	}
	t.Metadata = t.Metadata.Clone()
	return &t, nil
}

func (r *memRepository) CountQuotes(ctx context.Context, tradeID uuid.UUID) (int, error) {
	if err := r.injected("CountQuotes"); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.quotes[tradeID]), nil
}

func (r *memRepository) GetQuote(ctx context.Context, tradeID, quoteID uuid.UUID) (*Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.state.quotes[tradeID] {
		if q.ID == quoteID {
			q := q
			return &q, nil
		}
	}
	return nil, nil
}

func (r *memRepository) GetAcceptedQuote(ctx context.Context, tradeID uuid.UUID) (*Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.state.quotes[tradeID] {
		if q.Status == QuoteAccepted {
			q := q
			return &q, nil
		}
	}
	return nil, nil
}

func (r *memRepository) GetLatestContract(ctx context.Context, tradeID uuid.UUID) (*Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions := r.state.contracts[tradeID]
	if len(versions) == 0 {
		return nil, nil
	}
	sorted := append([]Contract(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version > sorted[j].Version })
	return &sorted[0], nil
}

func (r *memRepository) GetComplianceCase(ctx context.Context, tradeID uuid.UUID) (*ComplianceCase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc, ok := r.state.compliance[tradeID]
	if !ok {
		return nil, nil
	}
	return &cc, nil
}

func (r *memRepository) GetEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error) {
	if err := r.injected("GetEscrow"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.escrows[tradeID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memRepository) GetShipment(ctx context.Context, tradeID uuid.UUID) (*Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state.shipments[tradeID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memRepository) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	r.mu.Lock()
	work := r.state.clone()
	r.mu.Unlock()

	if err := fn(&memTx{repo: r, state: work}); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = work
	r.mu.Unlock()
	return nil
}

type memTx struct {
	repo  *memRepository
	state *memState
}

func (t *memTx) LockEscrow(ctx context.Context, tradeID uuid.UUID) (*Escrow, error) {
	if err := t.repo.injected("LockEscrow"); err != nil {
		return nil, err
	}
	e, ok := t.state.escrows[tradeID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *memTx) AcceptQuote(ctx context.Context, tradeID, quoteID uuid.UUID) error {
	if err := t.repo.injected("AcceptQuote"); err != nil {
		return err
	}
	quotes := t.state.quotes[tradeID]
	for i := range quotes {
		if quotes[i].ID == quoteID {
			quotes[i].Status = QuoteAccepted
		} else if quotes[i].Status != QuoteRejected {
			quotes[i].Status = QuoteRejected
		}
	}
	return nil
}

func (t *memTx) CreateEscrow(ctx context.Context, escrow *Escrow) error {
	if err := t.repo.injected("CreateEscrow"); err != nil {
		return err
	}
	t.state.escrows[escrow.TradeID] = *escrow
	return nil
}

func (t *memTx) AwardRFQ(ctx context.Context, rfqID, supplierID uuid.UUID) error {
	if err := t.repo.injected("AwardRFQ"); err != nil {
		return err
	}
	t.state.rfqs[rfqID] = RFQAwarded
	t.state.rfqWinners[rfqID] = supplierID
	return nil
}

func (t *memTx) ReleaseEscrow(ctx context.Context, escrowID uuid.UUID, at time.Time) error {
	if err := t.repo.injected("ReleaseEscrow"); err != nil {
		return err
	}
	for k, e := range t.state.escrows {
		if e.ID == escrowID && e.Status == EscrowFunded {
			e.Status = EscrowReleased
			e.Balance = 0
			e.UpdatedAt = at
			t.state.escrows[k] = e
			return nil
		}
	}
	return errors.New("escrow not releasable")
}

func (t *memTx) CreatePayout(ctx context.Context, payout *Payout) error {
	if err := t.repo.injected("CreatePayout"); err != nil {
		return err
	}
	t.state.payouts = append(t.state.payouts, *payout)
	return nil
}

func (t *memTx) UpdateTradeStatus(ctx context.Context, upd *StatusUpdate) (*Trade, error) {
	if t.repo.beforeUpdate != nil {
		t.repo.beforeUpdate(t.state)
	}
	if err := t.repo.injected("UpdateTradeStatus"); err != nil {
		return nil, err
	}
	trade, ok := t.state.trades[upd.TradeID]
	if !ok || trade.Status != upd.From {
		return nil, ErrStaleState
	}

	trade.Status = upd.To
	if trade.Metadata == nil {
		trade.Metadata = JSONB{}
	}
	for k, v := range upd.MetadataPatch {
		trade.Metadata[k] = v
	}
	if upd.SellerID != nil {
		trade.SellerID = upd.SellerID
	}
	if upd.TradeType != nil {
		trade.TradeType = *upd.TradeType
	}
	if upd.PublishedAt != nil {
		trade.PublishedAt = upd.PublishedAt
	}
	if upd.CompletedAt != nil {
		trade.CompletedAt = upd.CompletedAt
	}
	trade.UpdatedAt = upd.UpdatedAt
	t.state.trades[trade.ID] = trade

	out := trade
	out.Metadata = trade.Metadata.Clone()
	return &out, nil
}

// memEventStore is an append-only slice
type memEventStore struct {
	mu     sync.Mutex
	events []TradeEvent
	err    error
}

func (s *memEventStore) Append(ctx context.Context, event *TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *memEventStore) ListByTrade(ctx context.Context, tradeID uuid.UUID) ([]TradeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TradeEvent
	for _, e := range s.events {
		if e.TradeID == tradeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memEventStore) all() []TradeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TradeEvent(nil), s.events...)
}
