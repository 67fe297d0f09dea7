package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/skumar2006/x402-payments-router/internal/ledger"
	"github.com/skumar2006/x402-payments-router/internal/models"
	"github.com/skumar2006/x402-payments-router/internal/services"
	"github.com/skumar2006/x402-payments-router/utils"
)

// activeLogLimit caps per-cycle "time remaining" lines so a busy ledger
// does not flood the log.
const activeLogLimit = 3

// LedgerAPI is the slice of the ledger client the scanner needs.
type LedgerAPI interface {
	Head() uint64
	CreationsSince(from uint64) []services.Creation
	Get(orderID string) ledger.PaymentRecord
	IsExpired(orderID string) bool
	Timeout() time.Duration
	SubmitRefund(ctx context.Context, orderID string) (services.SubmitResult, error)
}

// Store persists the scan high-water mark and refund audit rows. The
// checkpoint lets the scan floor advance without gaps across restarts;
// everything else the scanner remembers is volatile and safe to lose.
type Store interface {
	Checkpoint() (uint64, error)
	SetCheckpoint(height uint64) error
	RecordRefund(row *models.RefundRecord) error
}

// Config holds the loop's tunables.
type Config struct {
	// Interval between cycles.
	Interval time.Duration
	// Lookback bounds the first scan when no checkpoint exists yet.
	Lookback uint64
	// MaxRetries caps refund attempts per order on transport failures.
	MaxRetries int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Summary is the per-cycle outcome count.
type Summary struct {
	Refunded  int // expired and refunded this cycle
	Active    int // open, not yet expired; revisited next cycle
	Completed int // already terminal (or refunded by somebody else)
	Stuck     int // expired but past the retry cap; needs manual action
}

// Scanner is the long-running reconciliation loop. It guarantees every
// Open record eventually reaches a terminal state even if nobody ever
// confirms the purchase: once a record is past its deadline the scanner
// submits a refund, and treats AlreadyCompleted/NotFound as somebody
// else having won the race.
//
// The done set and retry counters are in-process only. A restart may
// re-attempt already-settled refunds; those collapse to harmless
// AlreadyCompleted answers because the ledger, not the scanner, is the
// authority.
type Scanner struct {
	client LedgerAPI
	store  Store
	cfg    Config
	log    *utils.Logger

	done     map[string]bool
	attempts map[string]int
	cycles   atomic.Uint64
}

func New(client LedgerAPI, store Store, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = 10000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		client:   client,
		store:    store,
		cfg:      cfg,
		log:      utils.DefaultLogger,
		done:     make(map[string]bool),
		attempts: make(map[string]int),
	}
}

// Run executes cycles until ctx is cancelled: one immediately, then one
// per interval. Cycles never overlap; a cycle finishes (or is abandoned
// at a record boundary on cancellation) before the next sleep starts.
func (s *Scanner) Run(ctx context.Context) {
	s.log.Info("reconciliation scanner started: interval=%s lookback=%d max_retries=%d",
		s.cfg.Interval, s.cfg.Lookback, s.cfg.MaxRetries)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciliation scanner stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Cycles returns how many full cycles have completed. Used by the
// readiness probe.
func (s *Scanner) Cycles() uint64 {
	return s.cycles.Load()
}

// RunOnce executes a single reconciliation cycle.
func (s *Scanner) RunOnce(ctx context.Context) Summary {
	head := s.client.Head()
	from := s.scanFloor(head)
	creations := s.client.CreationsSince(from)
	s.log.Debug("scan cycle: head=%d from=%d creations=%d", head, from, len(creations))

	var sum Summary
	// Highest height below which everything is resolved. Any unresolved
	// creation pins the checkpoint just below itself so the next scan
	// still sees it, even after a restart.
	newCheckpoint := head

	for _, c := range creations {
		select {
		case <-ctx.Done():
			s.log.Warn("cycle abandoned: %d creations left unchecked", len(creations))
			return sum
		default:
		}

		resolved := s.reconcile(ctx, c, &sum)
		if !resolved && c.Height-1 < newCheckpoint {
			newCheckpoint = c.Height - 1
		}
	}

	if newCheckpoint >= from {
		if err := s.store.SetCheckpoint(newCheckpoint); err != nil {
			s.log.Error("failed to persist scan checkpoint at height %d: %v", newCheckpoint, err)
		}
	}

	s.cycles.Add(1)
	s.log.Info("cycle summary: %d expired (refunded), %d active, %d completed, %d stuck",
		sum.Refunded, sum.Active, sum.Completed, sum.Stuck)
	return sum
}

// scanFloor picks the first height to scan: just above the persisted
// checkpoint when one exists, otherwise the bounded lookback window.
func (s *Scanner) scanFloor(head uint64) uint64 {
	cp, err := s.store.Checkpoint()
	if err != nil {
		s.log.Error("failed to load scan checkpoint, falling back to lookback window: %v", err)
		cp = 0
	}
	if cp > 0 {
		return cp + 1
	}
	if head > s.cfg.Lookback {
		return head - s.cfg.Lookback + 1
	}
	return 1
}

// reconcile handles one discovered creation. Returns true once the
// record needs no further visits from this process.
func (s *Scanner) reconcile(ctx context.Context, c services.Creation, sum *Summary) bool {
	if s.done[c.OrderID] {
		sum.Completed++
		return true
	}

	rec := s.client.Get(c.OrderID)
	if rec.Amount == 0 || rec.Status != ledger.StatusOpen {
		// Gone or already terminal; nothing for the sweeper to do.
		s.done[c.OrderID] = true
		sum.Completed++
		return true
	}

	if !s.client.IsExpired(c.OrderID) {
		sum.Active++
		if sum.Active <= activeLogLimit {
			left := rec.CreatedAt.Add(s.client.Timeout()).Sub(s.cfg.Now())
			if left < 0 {
				left = 0
			}
			s.log.Info("active payment %s: %s remaining", shortID(c.OrderID), left.Round(time.Second))
		}
		return false
	}

	if s.attempts[c.OrderID] >= s.cfg.MaxRetries {
		// Retry cap reached. The record stays Open until somebody
		// intervenes; keep it out of the checkpoint so it stays visible.
		sum.Stuck++
		s.log.Warn("max refund attempts reached for %s, leaving record open", shortID(c.OrderID))
		return false
	}

	res, err := s.client.SubmitRefund(ctx, c.OrderID)
	if err != nil {
		s.attempts[c.OrderID]++
		if s.attempts[c.OrderID] >= s.cfg.MaxRetries {
			s.log.Warn("refund failed for %s (attempt %d/%d), giving up: %v",
				shortID(c.OrderID), s.attempts[c.OrderID], s.cfg.MaxRetries, err)
		} else {
			s.log.Error("refund failed for %s (attempt %d/%d): %v",
				shortID(c.OrderID), s.attempts[c.OrderID], s.cfg.MaxRetries, err)
		}
		return false
	}

	switch res.Outcome {
	case services.OutcomeSettled:
		sum.Refunded++
		s.done[c.OrderID] = true
		attempts := s.attempts[c.OrderID] + 1
		delete(s.attempts, c.OrderID)
		s.log.Info("refunded expired payment %s: payer=%s amount=%d ref=%s",
			shortID(c.OrderID), c.Payer, c.Amount, res.Ref)
		if err := s.store.RecordRefund(&models.RefundRecord{
			OrderID:      c.OrderID,
			RefundTo:     string(c.Payer),
			Amount:       c.Amount,
			InclusionRef: res.Ref,
			BlockHeight:  res.Height,
			Attempts:     attempts,
			Status:       "refunded",
		}); err != nil {
			s.log.Error("failed to save refund record for %s: %v", shortID(c.OrderID), err)
		}
		return true
	case services.OutcomeAlreadyCompleted, services.OutcomeNotFound:
		// The confirmation coordinator won the race. Success, not
		// failure.
		sum.Completed++
		s.done[c.OrderID] = true
		delete(s.attempts, c.OrderID)
		s.log.Info("payment %s already processed, marking as complete", shortID(c.OrderID))
		return true
	case services.OutcomeNotExpired:
		// Clock skew between check and submission; revisit next cycle.
		sum.Active++
		return false
	default:
		s.attempts[c.OrderID]++
		s.log.Error("unexpected refund outcome %s for %s", res.Outcome, shortID(c.OrderID))
		return false
	}
}

func shortID(orderID string) string {
	if len(orderID) > 10 {
		return orderID[:10] + "..."
	}
	return orderID
}
