package position

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldwallet/observability/metrics"
)

// Store is the keyed cache for per-chain positions and claim state. Every
// entry carries the timestamp of its source so the last-writer-wins recency
// rule is enforced structurally: an authoritative snapshot older than the
// most recent optimistic patch cannot overwrite that patch.
//
// A chain with no entry is "unknown", which is distinct from a zero balance;
// unknown chains are excluded from aggregation entirely.
type Store struct {
	mu       sync.RWMutex
	entries  map[Key]*entry
	claims   map[common.Address]*claimEntry
	watchers map[uint64]func(Key)
	nextID   uint64
}

type entry struct {
	pos *ChainPosition
	// pending marks the principal as optimistically invalidated after a
	// submitted operation; readers see a loading state instead of a stale
	// number.
	pending   bool
	patchedAt time.Time
}

type claimEntry struct {
	state ClaimState
	// Optimistic claim block applied after a submitted claim.
	blockedUntil time.Time
	expectedDay  uint64
	patchedAt    time.Time
}

// NewStore constructs an empty position store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[Key]*entry),
		claims:   make(map[common.Address]*claimEntry),
		watchers: make(map[uint64]func(Key)),
	}
}

// SetAuthoritative installs a fetched snapshot for the key. The write is
// rejected, and false returned, when an optimistic patch newer than the
// snapshot is outstanding.
func (s *Store) SetAuthoritative(key Key, pos *ChainPosition) bool {
	if s == nil || pos == nil {
		return false
	}
	s.mu.Lock()
	ent, ok := s.entries[key]
	if ok && !ent.patchedAt.IsZero() && pos.ObservedAt.Before(ent.patchedAt) {
		s.mu.Unlock()
		metrics.Wallet().ObserveStaleWriteRejected()
		return false
	}
	if !ok {
		ent = &entry{}
		s.entries[key] = ent
	}
	ent.pos = pos.Clone()
	ent.pending = false
	ent.patchedAt = time.Time{}
	s.mu.Unlock()
	s.notify(key)
	return true
}

// MarkPending applies the optimistic invalidation for a submitted deposit or
// withdrawal: the cached principal stops being served until an authoritative
// snapshot at least as fresh as the patch arrives.
func (s *Store) MarkPending(key Key, patchedAt time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok {
		ent = &entry{}
		s.entries[key] = ent
	}
	ent.pending = true
	if patchedAt.After(ent.patchedAt) {
		ent.patchedAt = patchedAt
	}
	s.mu.Unlock()
	s.notify(key)
}

// Invalidate drops the cached snapshot for the key so the next read reports
// the chain as unknown until a fresh fetch lands.
func (s *Store) Invalidate(key Key) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	s.notify(key)
}

// Position returns the cached snapshot for the key. ok is false for unknown
// chains and for entries under an optimistic invalidation.
func (s *Store) Position(key Key) (*ChainPosition, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entries[key]
	if !ok || ent.pos == nil || ent.pending {
		return nil, false
	}
	return ent.pos.Clone(), true
}

// Pending reports whether the key currently carries an optimistic
// invalidation.
func (s *Store) Pending(key Key) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entries[key]
	return ok && ent.pending
}

// Aggregate folds the account's known chain positions into one total. Pending
// entries contribute their APY sample to the zero-principal fallback but
// never their stale principal.
func (s *Store) Aggregate(account common.Address) Aggregate {
	if s == nil {
		return Aggregate{}
	}
	s.mu.RLock()
	samples := make([]Sample, 0, len(s.entries))
	pending := 0
	for key, ent := range s.entries {
		if key.Account != account || ent.pos == nil {
			continue
		}
		if ent.pending {
			pending++
			samples = append(samples, Sample{APYBasisPoints: ent.pos.APYBasisPoints})
			continue
		}
		samples = append(samples, Sample{
			PrincipalMicro: ent.pos.PrincipalMicro,
			APYBasisPoints: ent.pos.APYBasisPoints,
		})
	}
	s.mu.RUnlock()
	agg := Combine(samples)
	agg.PendingChains = pending
	return agg
}

// BlockClaim applies the optimistic claim block after a submitted claim: the
// account cannot claim again before until, and only an authoritative state
// with LastClaimedDay >= expectedDay may lift the block.
func (s *Store) BlockClaim(account common.Address, expectedDay uint64, until, patchedAt time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.claims[account]
	if !ok {
		ce = &claimEntry{}
		s.claims[account] = ce
	}
	if until.After(ce.blockedUntil) {
		ce.blockedUntil = until
	}
	if expectedDay > ce.expectedDay {
		ce.expectedDay = expectedDay
	}
	if patchedAt.After(ce.patchedAt) {
		ce.patchedAt = patchedAt
	}
}

// SetClaimAuthoritative installs fetched claim state. While an optimistic
// block is outstanding, a response that has not advanced to the expected day
// updates nothing that could re-enable claiming early; it returns false so
// the caller can keep polling.
func (s *Store) SetClaimAuthoritative(account common.Address, state ClaimState) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ce, ok := s.claims[account]
	if !ok {
		ce = &claimEntry{}
		s.claims[account] = ce
	}
	if !ce.patchedAt.IsZero() && state.LastClaimedDay < ce.expectedDay {
		return false
	}
	ce.state = state
	ce.blockedUntil = time.Time{}
	ce.expectedDay = 0
	ce.patchedAt = time.Time{}
	return true
}

// ClaimState returns the last installed claim state for the account.
func (s *Store) ClaimState(account common.Address) (ClaimState, bool) {
	if s == nil {
		return ClaimState{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ce, ok := s.claims[account]
	if !ok {
		return ClaimState{}, false
	}
	return ce.state, true
}

// NextClaimAt returns the effective earliest claim time for the account,
// honouring any outstanding optimistic block.
func (s *Store) NextClaimAt(account common.Address) time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ce, ok := s.claims[account]
	if !ok {
		return time.Time{}
	}
	next := ce.state.NextClaimAt
	if ce.blockedUntil.After(next) {
		next = ce.blockedUntil
	}
	return next
}

// Watch registers a callback invoked after every position write. The
// returned cancel func removes the registration; callers must invoke it when
// the consuming view is torn down.
func (s *Store) Watch(fn func(Key)) func() {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(key Key) {
	s.mu.RLock()
	fns := make([]func(Key), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(key)
	}
}
