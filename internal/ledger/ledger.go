package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Status is the lifecycle state of a payment record. A record starts Open
// and transitions exactly once, to Confirmed or Refunded.
type Status uint8

const (
	StatusOpen Status = iota + 1
	StatusConfirmed
	StatusRefunded
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusConfirmed:
		return "confirmed"
	case StatusRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Identity is an opaque account identity (payer, merchant, confirmer).
type Identity string

// custodyAccount holds escrowed funds between create and confirm/refund.
const custodyAccount Identity = "__escrow_custody__"

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrNotFound          = errors.New("payment not found")
	ErrAlreadyCompleted  = errors.New("already completed")
	ErrNotExpired        = errors.New("not expired yet")
	ErrUnauthorized      = errors.New("caller is not the confirmer")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrClosed            = errors.New("ledger is closed")
)

// PaymentRecord is the per-order escrow record. Callers must treat
// Amount == 0 as "record does not exist".
type PaymentRecord struct {
	OrderID   string
	Payer     Identity
	Amount    uint64
	CreatedAt time.Time
	Status    Status
}

// EventKind tags entries in the ledger's append-only event log.
type EventKind uint8

const (
	EventCreated EventKind = iota + 1
	EventConfirmed
	EventRefunded
)

// Event is one committed mutation. Height is the position in the commit
// sequence and is strictly increasing.
type Event struct {
	Kind    EventKind
	OrderID string
	Payer   Identity
	Amount  uint64
	Height  uint64
	At      time.Time
}

// Config fixes the ledger's deployment-time parameters. They are
// immutable after New.
type Config struct {
	Merchant  Identity
	Confirmer Identity
	Timeout   time.Duration
	// InitialBalances seeds payer balances at provisioning time. In the
	// deployed system payers hold no external wallets, so every balance
	// the ledger will ever debit must be credited here or via Fund.
	InitialBalances map[Identity]uint64
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

type opKind uint8

const (
	opCreate opKind = iota + 1
	opConfirm
	opRefund
)

type op struct {
	kind    opKind
	orderID string
	caller  Identity
	amount  uint64
	reply   chan opResult
}

type opResult struct {
	height uint64
	err    error
}

// Ledger is the authoritative escrow store. All mutations are funneled
// through a single commit goroutine, so concurrent callers racing to
// finalize the same record are globally ordered: the first one wins and
// the other observes ErrAlreadyCompleted. Reads never go through the
// commit queue and never block on in-flight writers.
type Ledger struct {
	mu       sync.RWMutex
	records  map[string]*PaymentRecord
	balances map[Identity]uint64
	events   []Event
	height   uint64

	merchant  Identity
	confirmer Identity
	timeout   time.Duration
	now       func() time.Time

	ops       chan op
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		records:   make(map[string]*PaymentRecord),
		balances:  make(map[Identity]uint64),
		merchant:  cfg.Merchant,
		confirmer: cfg.Confirmer,
		timeout:   cfg.Timeout,
		now:       now,
		ops:       make(chan op),
		quit:      make(chan struct{}),
	}
	for id, amount := range cfg.InitialBalances {
		l.balances[id] = amount
	}
	l.wg.Add(1)
	go l.commitLoop()
	return l
}

// Close stops the commit loop. Pending submissions fail with ErrClosed.
// Safe to call more than once.
func (l *Ledger) Close() {
	l.closeOnce.Do(func() { close(l.quit) })
	l.wg.Wait()
}

func (l *Ledger) commitLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.quit:
			return
		case o := <-l.ops:
			o.reply <- l.apply(o)
		}
	}
}

// submit queues one mutation and waits for it to be included in the
// commit sequence. The wait is bounded by ctx.
func (l *Ledger) submit(ctx context.Context, o op) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o.reply = make(chan opResult, 1)
	select {
	case l.ops <- o:
	case <-l.quit:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-o.reply:
		return res.height, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SubmitCreate escrows amount from payer under orderID. Fails with
// ErrDuplicateOrder if the order already exists.
func (l *Ledger) SubmitCreate(ctx context.Context, orderID string, payer Identity, amount uint64) (uint64, error) {
	return l.submit(ctx, op{kind: opCreate, orderID: orderID, caller: payer, amount: amount})
}

// SubmitConfirm releases the escrowed amount to the merchant. Only the
// configured confirmer identity may confirm.
func (l *Ledger) SubmitConfirm(ctx context.Context, orderID string, caller Identity) (uint64, error) {
	return l.submit(ctx, op{kind: opConfirm, orderID: orderID, caller: caller})
}

// SubmitRefund returns the escrowed amount to the payer, once the record
// has passed its expiration deadline. Any caller may refund.
func (l *Ledger) SubmitRefund(ctx context.Context, orderID string) (uint64, error) {
	return l.submit(ctx, op{kind: opRefund, orderID: orderID})
}

// apply executes one operation atomically. Runs only on the commit
// goroutine. A failed operation changes nothing and consumes no height.
func (l *Ledger) apply(o op) opResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch o.kind {
	case opCreate:
		if o.amount == 0 {
			return opResult{err: ErrZeroAmount}
		}
		if _, exists := l.records[o.orderID]; exists {
			return opResult{err: ErrDuplicateOrder}
		}
		if l.balances[o.caller] < o.amount {
			return opResult{err: ErrInsufficientFunds}
		}
		l.balances[o.caller] -= o.amount
		l.balances[custodyAccount] += o.amount
		rec := &PaymentRecord{
			OrderID:   o.orderID,
			Payer:     o.caller,
			Amount:    o.amount,
			CreatedAt: l.now(),
			Status:    StatusOpen,
		}
		l.records[o.orderID] = rec
		return opResult{height: l.append(EventCreated, rec)}

	case opConfirm:
		if o.caller != l.confirmer {
			return opResult{err: ErrUnauthorized}
		}
		rec := l.records[o.orderID]
		if rec == nil {
			return opResult{err: ErrNotFound}
		}
		if rec.Status != StatusOpen {
			return opResult{err: ErrAlreadyCompleted}
		}
		l.balances[custodyAccount] -= rec.Amount
		l.balances[l.merchant] += rec.Amount
		rec.Status = StatusConfirmed
		return opResult{height: l.append(EventConfirmed, rec)}

	case opRefund:
		rec := l.records[o.orderID]
		if rec == nil {
			return opResult{err: ErrNotFound}
		}
		if rec.Status != StatusOpen {
			return opResult{err: ErrAlreadyCompleted}
		}
		if l.now().Before(rec.CreatedAt.Add(l.timeout)) {
			return opResult{err: ErrNotExpired}
		}
		l.balances[custodyAccount] -= rec.Amount
		l.balances[rec.Payer] += rec.Amount
		rec.Status = StatusRefunded
		return opResult{height: l.append(EventRefunded, rec)}
	}
	return opResult{err: errors.New("unknown operation")}
}

// append records an event for a committed mutation. Caller holds mu.
func (l *Ledger) append(kind EventKind, rec *PaymentRecord) uint64 {
	l.height++
	l.events = append(l.events, Event{
		Kind:    kind,
		OrderID: rec.OrderID,
		Payer:   rec.Payer,
		Amount:  rec.Amount,
		Height:  l.height,
		At:      l.now(),
	})
	return l.height
}

// Fund credits an identity after provisioning, for top-ups. Emits no
// event.
func (l *Ledger) Fund(id Identity, amount uint64) {
	l.mu.Lock()
	l.balances[id] += amount
	l.mu.Unlock()
}

// Get returns the record for orderID, or a zero-value record if it does
// not exist. Amount == 0 is the absence marker.
func (l *Ledger) Get(orderID string) PaymentRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec := l.records[orderID]
	if rec == nil {
		return PaymentRecord{OrderID: orderID}
	}
	return *rec
}

// IsExpired reports whether the record is Open and past its deadline.
// Pure query, mutates nothing.
func (l *Ledger) IsExpired(orderID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec := l.records[orderID]
	if rec == nil || rec.Status != StatusOpen {
		return false
	}
	return !l.now().Before(rec.CreatedAt.Add(l.timeout))
}

// BalanceOf returns the committed balance of an identity.
func (l *Ledger) BalanceOf(id Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// Head returns the height of the latest committed mutation.
func (l *Ledger) Head() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// EventsSince returns all committed events with Height >= from, oldest
// first.
func (l *Ledger) EventsSince(from uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	// events are already height-ordered; binary search is overkill at
	// this scale, walk back from the tail instead
	i := len(l.events)
	for i > 0 && l.events[i-1].Height >= from {
		i--
	}
	out := make([]Event, len(l.events)-i)
	copy(out, l.events[i:])
	return out
}

// Timeout returns the deployment-time expiration duration.
func (l *Ledger) Timeout() time.Duration {
	return l.timeout
}

// Merchant returns the fixed merchant identity.
func (l *Ledger) Merchant() Identity {
	return l.merchant
}
