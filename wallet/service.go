package wallet

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldwallet/accrual"
	"yieldwallet/amount"
	"yieldwallet/observability/metrics"
	"yieldwallet/operation"
	"yieldwallet/position"
	"yieldwallet/reconcile"
)

// Reader fetches authoritative balances from the per-chain backends.
type Reader interface {
	FetchBalance(ctx context.Context, chainID uint64, account common.Address) (*position.ChainPosition, error)
	FetchAPY(ctx context.Context, chainID uint64) (uint64, error)
	FetchClaimState(ctx context.Context, account common.Address) (position.ClaimState, error)
	FetchLiquid(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
}

// Summary is the aggregated wallet view served to clients.
type Summary struct {
	Aggregate   position.Aggregate
	NextClaimAt time.Time
	ClaimKnown  bool
}

// Service is the orchestration facade for one wallet: it owns the position
// cache, the accrual trackers, the operation runner and the reconciliation
// poller, and exposes the operations the gateway serves.
type Service struct {
	account  common.Address
	chainIDs []uint64

	store  *position.Store
	reader Reader
	runner *operation.Runner
	poller *reconcile.Poller
	log    *slog.Logger

	mu            sync.Mutex
	totalTracker  *accrual.Tracker
	chainTrackers map[uint64]*accrual.Tracker
	mainDigits    int
	extraDigits   int

	cancelWatch func()
}

// NewService wires the facade. The runner's completion hook and balance
// lookup are installed here, so pass the runner in before starting
// operations through it elsewhere.
func NewService(account common.Address, chainIDs []uint64, store *position.Store, reader Reader, runner *operation.Runner, poller *reconcile.Poller) *Service {
	s := &Service{
		account:       account,
		chainIDs:      append([]uint64(nil), chainIDs...),
		store:         store,
		reader:        reader,
		runner:        runner,
		poller:        poller,
		log:           slog.Default(),
		totalTracker:  accrual.NewTracker(nil, 0, time.Now()),
		chainTrackers: make(map[uint64]*accrual.Tracker),
		mainDigits:    2,
		extraDigits:   3,
	}
	if runner != nil {
		runner.SetAvailableFunc(s.available)
		runner.SetOnComplete(s.handleComplete)
	}
	s.cancelWatch = store.Watch(s.onStoreWrite)
	return s
}

// SetLogger overrides the structured logger.
func (s *Service) SetLogger(log *slog.Logger) {
	if s == nil || log == nil {
		return
	}
	s.log = log
}

// SetDisplayDigits adjusts how many fraction digits every animated display
// always shows and how many extra digits appear once significant. It applies
// to existing trackers and to trackers created for chains fetched later.
func (s *Service) SetDisplayDigits(main, extra int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mainDigits = main
	s.extraDigits = extra
	s.totalTracker.SetDigits(main, extra)
	for _, tracker := range s.chainTrackers {
		tracker.SetDigits(main, extra)
	}
}

// Close tears down the store subscription and the poller.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.cancelWatch != nil {
		s.cancelWatch()
	}
	if s.poller != nil {
		s.poller.Close()
	}
}

// Account returns the wallet owner's address.
func (s *Service) Account() common.Address {
	return s.account
}

// ChainIDs returns the configured chain set.
func (s *Service) ChainIDs() []uint64 {
	return append([]uint64(nil), s.chainIDs...)
}

// Refresh fetches every chain's position plus the claim state. A failed chain
// keeps whatever the cache already holds; a chain that has never been fetched
// stays unknown and therefore outside the aggregate.
func (s *Service) Refresh(ctx context.Context) {
	for _, chainID := range s.chainIDs {
		s.RefreshChain(ctx, chainID)
	}
	state, err := s.reader.FetchClaimState(ctx, s.account)
	if err != nil {
		s.log.Warn("claim state refresh failed", "error", err)
		return
	}
	s.store.SetClaimAuthoritative(s.account, state)
}

// RefreshChain fetches one chain's position. Chains holding no principal get
// their APY refreshed from the spot-rate endpoint so the projected-earnings
// preview quotes the current rate, not the one frozen into an empty snapshot.
func (s *Service) RefreshChain(ctx context.Context, chainID uint64) {
	pos, err := s.reader.FetchBalance(ctx, chainID, s.account)
	if err != nil {
		s.log.Warn("position refresh failed", "chain", chainID, "error", err)
		return
	}
	if pos.PrincipalMicro == nil || pos.PrincipalMicro.Sign() == 0 {
		if apy, err := s.reader.FetchAPY(ctx, chainID); err == nil {
			pos.APYBasisPoints = apy
		} else {
			s.log.Warn("spot rate refresh failed", "chain", chainID, "error", err)
		}
	}
	key := position.Key{Account: s.account, ChainID: chainID}
	if !s.store.SetAuthoritative(key, pos) {
		s.log.Debug("refresh superseded by newer optimistic patch", "chain", chainID)
	}
}

// Invalidate drops one chain's cached position and immediately refetches it.
func (s *Service) Invalidate(ctx context.Context, chainID uint64) {
	key := position.Key{Account: s.account, ChainID: chainID}
	s.store.Invalidate(key)
	s.RefreshChain(ctx, chainID)
}

// Summary returns the aggregated position and claim cadence.
func (s *Service) Summary() Summary {
	agg := s.store.Aggregate(s.account)
	if agg.TotalPrincipalMicro != nil {
		units, _ := new(big.Float).Quo(
			new(big.Float).SetInt(agg.TotalPrincipalMicro),
			big.NewFloat(1e6),
		).Float64()
		metrics.Wallet().SetPrincipalUnits(units)
	}
	_, claimKnown := s.store.ClaimState(s.account)
	return Summary{
		Aggregate:   agg,
		NextClaimAt: s.store.NextClaimAt(s.account),
		ClaimKnown:  claimKnown,
	}
}

// AnimatedValue returns the continuously accruing total balance display at
// the given instant.
func (s *Service) AnimatedValue(now time.Time) accrual.Display {
	s.mu.Lock()
	tracker := s.totalTracker
	s.mu.Unlock()
	return tracker.Value(now)
}

// AnimatedChainValue returns the accruing display for one chain. ok is false
// while the chain is unknown or refreshing.
func (s *Service) AnimatedChainValue(chainID uint64, now time.Time) (accrual.Display, bool) {
	s.mu.Lock()
	tracker, ok := s.chainTrackers[chainID]
	s.mu.Unlock()
	if !ok {
		return accrual.Display{}, false
	}
	return tracker.Value(now), true
}

// Submit parses the display amount and starts the operation. Claims take an
// empty amount.
func (s *Service) Submit(ctx context.Context, kind operation.Kind, chainID uint64, displayAmount string) (<-chan operation.Transition, error) {
	if s.runner == nil {
		return nil, errors.New("wallet: runner not configured")
	}
	var amountMicro *big.Int
	if strings.TrimSpace(displayAmount) != "" {
		parsed, err := amount.ParseDisplay(displayAmount)
		if err != nil {
			return nil, &operation.ValidationError{Reason: err.Error()}
		}
		amountMicro = parsed
	}
	return s.runner.Run(ctx, kind, chainID, amountMicro)
}

// History of operations is served straight from the journal by the gateway;
// the service only handles live state.

func (s *Service) handleComplete(op *operation.Operation) {
	if s.poller == nil {
		return
	}
	job := reconcile.NewJobFromOperation(s.store, op, time.Now())
	if err := s.poller.Enqueue(job); err != nil {
		s.log.Warn("reconciliation enqueue failed", "kind", op.Kind.String(), "error", err)
	}
}

// available reports the spendable ceiling for amount validation: the liquid
// balance for deposits, the cached principal for withdrawals.
func (s *Service) available(ctx context.Context, kind operation.Kind, chainID uint64) (*big.Int, error) {
	switch kind {
	case operation.KindDeposit:
		return s.reader.FetchLiquid(ctx, chainID, s.account)
	case operation.KindWithdraw:
		key := position.Key{Account: s.account, ChainID: chainID}
		pos, ok := s.store.Position(key)
		if !ok {
			return nil, &operation.ValidationError{Reason: "position unavailable, refresh and retry"}
		}
		return pos.PrincipalMicro, nil
	default:
		return nil, nil
	}
}

// onStoreWrite re-anchors the accrual trackers whenever the cache changes for
// this wallet. Anchoring on the confirmed numbers keeps the animated display
// moving by exactly the confirmed delta instead of resetting or jumping.
func (s *Service) onStoreWrite(key position.Key) {
	if key.Account != s.account {
		return
	}
	now := time.Now()
	agg := s.store.Aggregate(s.account)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalTracker.Anchor(agg.TotalPrincipalMicro, agg.WeightedAPYBasisPoints, now)

	pos, ok := s.store.Position(key)
	if !ok {
		delete(s.chainTrackers, key.ChainID)
		return
	}
	tracker, exists := s.chainTrackers[key.ChainID]
	if !exists {
		tracker = accrual.NewTracker(pos.PrincipalMicro, pos.APYBasisPoints, now)
		tracker.SetDigits(s.mainDigits, s.extraDigits)
		s.chainTrackers[key.ChainID] = tracker
		return
	}
	tracker.Anchor(pos.PrincipalMicro, pos.APYBasisPoints, now)
}
