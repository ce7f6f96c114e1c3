// Package wallet exposes the wallet service: earn/spend/convert operations
// over the hash-chained sub-ledger, market quotes, and ledger analytics.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	"github.com/shf-platform/credit_layer/internal/app/metrics"
	"github.com/shf-platform/credit_layer/internal/app/storage"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// TierProvider reports the current tier band for an actor. The events
// service satisfies this via its derived score state.
type TierProvider interface {
	TierBand(ctx context.Context, userID string) string
}

// SpendResult reports the outcome of a spend attempt. A rejected spend is a
// domain outcome, not a transport error: OK is false and Error names the
// reason, with the ledger untouched.
type SpendResult struct {
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Balance int           `json:"balance"`
	Entry   *wallet.Entry `json:"entry,omitempty"`
}

// Service owns all ledger mutations. A single mutex serialises
// read-validate-append sequences so concurrent spends cannot overdraw.
type Service struct {
	store storage.WalletStore
	rates wallet.RateTable
	tiers TierProvider
	log   *logger.Logger
	now   func() time.Time

	mu sync.Mutex
}

// New builds the wallet service over store. A zero rates table falls back to
// the platform defaults.
func New(store storage.WalletStore, rates wallet.RateTable, log *logger.Logger) *Service {
	if rates.USDPerSHFc <= 0 {
		rates = wallet.DefaultRates()
	}
	if log == nil {
		log = logger.NewDefault("wallet-service")
	}
	return &Service{
		store: store,
		rates: rates,
		log:   log,
		now:   time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTierProvider wires the score source used by market quotes.
func (s *Service) WithTierProvider(tp TierProvider) *Service {
	s.tiers = tp
	return s
}

// Rates returns the fixed rate table in force.
func (s *Service) Rates() wallet.RateTable {
	return s.rates
}

// Balances reduces the ledger for one actor.
func (s *Service) Balances(ctx context.Context, actorID string) wallet.Balances {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balancesLocked(ctx, actorID)
}

func (s *Service) balancesLocked(ctx context.Context, actorID string) wallet.Balances {
	entries, err := s.store.ListEntries(ctx, actorID)
	if err != nil {
		s.log.WithError(err).Warn("listing ledger entries failed")
		return wallet.Balances{Tokens: map[string]int{}}
	}
	return wallet.Reduce(entries, actorID)
}

// Entries lists the sealed ledger, optionally filtered by actor.
func (s *Service) Entries(ctx context.Context, actorID string) []wallet.Entry {
	entries, err := s.store.ListEntries(ctx, actorID)
	if err != nil {
		s.log.WithError(err).Warn("listing ledger entries failed")
		return nil
	}
	return entries
}

// Earn credits an actor with shf and optional tokens.
func (s *Service) Earn(ctx context.Context, actorID string, credits int, tokens map[string]int, meta map[string]any) (wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, wallet.Entry{
		ActorID:       actorID,
		Action:        wallet.ActionEarn,
		Credits:       credits,
		Tokens:        tokens,
		CurrencyDelta: credits,
		Meta:          meta,
	})
}

// Spend debits shf from an actor's balance. The balance check and the append
// happen under one lock; an insufficient balance rejects without mutating
// the ledger.
func (s *Service) Spend(ctx context.Context, actorID string, amount int, meta map[string]any) SpendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balancesLocked(ctx, actorID).Currency
	if amount <= 0 {
		metrics.RecordSpendRejection()
		return SpendResult{OK: false, Error: "amount must be positive", Balance: balance}
	}
	if amount > balance {
		metrics.RecordSpendRejection()
		return SpendResult{
			OK:      false,
			Error:   fmt.Sprintf("insufficient balance: have %d, need %d", balance, amount),
			Balance: balance,
		}
	}

	entry, err := s.appendLocked(ctx, wallet.Entry{
		ActorID:       actorID,
		Action:        wallet.ActionSpend,
		CurrencyDelta: -amount,
		Meta:          meta,
	})
	if err != nil {
		metrics.RecordSpendRejection()
		return SpendResult{OK: false, Error: err.Error(), Balance: balance}
	}
	return SpendResult{OK: true, Balance: balance - amount, Entry: &entry}
}

// Convert exchanges token units into shf at the fixed token rate.
func (s *Service) Convert(ctx context.Context, actorID, token string, count int) (wallet.Entry, error) {
	per := s.rates.TokenRate(token)
	if per <= 0 {
		return wallet.Entry{}, fmt.Errorf("unknown token %q", token)
	}
	if count <= 0 {
		return wallet.Entry{}, fmt.Errorf("count must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.balancesLocked(ctx, actorID).Tokens[token]
	if count > held {
		return wallet.Entry{}, fmt.Errorf("insufficient %s: have %d, need %d", token, held, count)
	}
	return s.appendLocked(ctx, wallet.Entry{
		ActorID:       actorID,
		Action:        wallet.ActionConvert,
		Tokens:        map[string]int{token: -count},
		CurrencyDelta: count * per,
		Meta:          map[string]any{"token": token, "count": count, "per": per},
	})
}

// Quote prices a USD amount against the actor's balance and tier band.
func (s *Service) Quote(ctx context.Context, actorID string, usd float64) wallet.Breakdown {
	band := "D"
	if s.tiers != nil {
		band = s.tiers.TierBand(ctx, actorID)
	}
	balance := s.Balances(ctx, actorID).Currency
	return s.rates.MarketBreakdown(wallet.Quote{
		USD:         usd,
		SHFcBalance: balance,
		TierBand:    band,
	})
}

// Stats summarises ledger activity over the trailing window.
func (s *Service) Stats(ctx context.Context, sinceDays int) wallet.Stats {
	entries, err := s.store.ListEntries(ctx, "")
	if err != nil {
		s.log.WithError(err).Warn("listing ledger entries failed")
		return wallet.Stats{ByAction: map[string]int{}}
	}
	return wallet.WindowStats(entries, sinceDays, s.now())
}

// Verify walks the full chain and reports the first broken entry, -1 if the
// chain is intact.
func (s *Service) Verify(ctx context.Context) int {
	entries, err := s.store.ListEntries(ctx, "")
	if err != nil {
		s.log.WithError(err).Warn("listing ledger entries failed")
		return -1
	}
	return wallet.Verify(entries)
}

// OpenDebt records a debt position against an actor.
func (s *Service) OpenDebt(ctx context.Context, actorID string, amount int, meta map[string]any) (wallet.Entry, error) {
	if amount <= 0 {
		return wallet.Entry{}, fmt.Errorf("amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, wallet.Entry{
		ActorID: actorID,
		Action:  wallet.ActionDebtOpen,
		Meta:    withAmount(meta, amount),
	})
}

// PayDebt records a payment against an open debt position.
func (s *Service) PayDebt(ctx context.Context, actorID string, amount int, meta map[string]any) (wallet.Entry, error) {
	if amount <= 0 {
		return wallet.Entry{}, fmt.Errorf("amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, wallet.Entry{
		ActorID: actorID,
		Action:  wallet.ActionDebtPayment,
		Meta:    withAmount(meta, amount),
	})
}

// OpenDispute records a dispute against a prior entry.
func (s *Service) OpenDispute(ctx context.Context, actorID, entryID string, meta map[string]any) (wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta == nil {
		meta = map[string]any{}
	}
	meta["entryId"] = entryID
	return s.appendLocked(ctx, wallet.Entry{
		ActorID: actorID,
		Action:  wallet.ActionDisputeOpen,
		Meta:    meta,
	})
}

// ResolveDispute records the resolution of a dispute.
func (s *Service) ResolveDispute(ctx context.Context, actorID, entryID, outcome string, meta map[string]any) (wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta == nil {
		meta = map[string]any{}
	}
	meta["entryId"] = entryID
	meta["outcome"] = outcome
	return s.appendLocked(ctx, wallet.Entry{
		ActorID: actorID,
		Action:  wallet.ActionDisputeResolve,
		Meta:    meta,
	})
}

func (s *Service) appendLocked(ctx context.Context, e wallet.Entry) (wallet.Entry, error) {
	sealed, err := s.store.AppendEntry(ctx, e)
	if err != nil {
		s.log.WithError(err).WithField("action", e.Action).Warn("ledger append failed")
		return wallet.Entry{}, err
	}
	return sealed, nil
}

func withAmount(meta map[string]any, amount int) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["amount"] = amount
	return meta
}
