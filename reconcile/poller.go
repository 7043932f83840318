package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldwallet/observability/metrics"
	"yieldwallet/operation"
	"yieldwallet/position"
)

const (
	defaultBaseDelay   = 2 * time.Second
	defaultMaxAttempts = 4
	defaultCallTimeout = 10 * time.Second
)

const secondsPerDay = 24 * 60 * 60

// Fetcher reads authoritative state from the backend.
type Fetcher interface {
	FetchBalance(ctx context.Context, chainID uint64, account common.Address) (*position.ChainPosition, error)
	FetchClaimState(ctx context.Context, account common.Address) (position.ClaimState, error)
}

// Job tracks one completed operation until the authoritative backend reflects
// it. The expectation is kind-specific: a minimum principal for deposits, a
// maximum for withdrawals, a minimum claimed day for claims.
type Job struct {
	Key  position.Key
	Kind operation.Kind
	// ExpectedPrincipalMicro bounds the confirmed principal for deposits
	// (lower bound) and withdrawals (upper bound).
	ExpectedPrincipalMicro *big.Int
	// ExpectedDay and BlockUntil describe the optimistic claim block.
	ExpectedDay uint64
	BlockUntil  time.Time
}

// Poller patches cached state the moment an operation completes, then polls
// the source of truth with exponential backoff until the patch is confirmed
// or the retry budget runs out. Exhaustion leaves the optimistic patch
// standing; the next natural cache refresh corrects it eventually.
type Poller struct {
	store   *position.Store
	fetcher Fetcher

	baseDelay   time.Duration
	maxAttempts int
	callTimeout time.Duration
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan Job
	wg     sync.WaitGroup
}

// Option mutates poller configuration.
type Option func(*Poller)

// WithRetryPolicy overrides the backoff base delay and attempt budget.
func WithRetryPolicy(baseDelay time.Duration, maxAttempts int) Option {
	return func(p *Poller) {
		if baseDelay > 0 {
			p.baseDelay = baseDelay
		}
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
	}
}

// WithCallTimeout bounds each authoritative fetch.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithLogger overrides the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Poller) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPoller constructs a poller and spawns its worker goroutine.
func NewPoller(store *position.Store, fetcher Fetcher, opts ...Option) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		store:       store,
		fetcher:     fetcher,
		baseDelay:   defaultBaseDelay,
		maxAttempts: defaultMaxAttempts,
		callTimeout: defaultCallTimeout,
		log:         slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan Job, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// Close stops the poller and waits for the in-flight job to finish.
func (p *Poller) Close() {
	if p == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
}

// NewJobFromOperation derives the reconciliation job for a completed
// operation, reading the current cached principal to compute the expected
// bound.
func NewJobFromOperation(store *position.Store, op *operation.Operation, now time.Time) Job {
	key := position.Key{Account: op.Account, ChainID: op.ChainID}
	job := Job{Key: key, Kind: op.Kind}
	switch op.Kind {
	case operation.KindClaim:
		day := uint64(now.UTC().Unix() / secondsPerDay)
		job.ExpectedDay = day
		job.BlockUntil = time.Unix(int64((day+1)*secondsPerDay), 0).UTC()
	case operation.KindDeposit:
		expected := new(big.Int)
		if cached, ok := store.Position(key); ok {
			expected.Set(cached.PrincipalMicro)
		}
		if op.AmountMicro != nil {
			expected.Add(expected, op.AmountMicro)
		}
		job.ExpectedPrincipalMicro = expected
	case operation.KindWithdraw:
		expected := new(big.Int)
		if cached, ok := store.Position(key); ok {
			expected.Set(cached.PrincipalMicro)
		}
		if op.AmountMicro != nil {
			expected.Sub(expected, op.AmountMicro)
		}
		if expected.Sign() < 0 {
			expected.SetInt64(0)
		}
		job.ExpectedPrincipalMicro = expected
	}
	return job
}

// Enqueue applies the optimistic patch immediately and schedules the
// confirmation polls. The patch lands before Enqueue returns so the UI reacts
// without waiting for the backend.
func (p *Poller) Enqueue(job Job) error {
	if p == nil {
		return errors.New("reconcile: poller not initialised")
	}
	now := time.Now()
	switch job.Kind {
	case operation.KindClaim:
		p.store.BlockClaim(job.Key.Account, job.ExpectedDay, job.BlockUntil, now)
	case operation.KindDeposit, operation.KindWithdraw:
		p.store.MarkPending(job.Key, now)
	default:
		return errors.New("reconcile: unknown operation kind")
	}
	select {
	case p.queue <- job:
		return nil
	case <-p.ctx.Done():
		return errors.New("reconcile: poller closed")
	}
}

func (p *Poller) worker() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.queue:
			p.process(job)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) process(job Job) {
	delay := p.baseDelay
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			return
		}
		delay *= 2

		metrics.Wallet().ObserveReconcileAttempt()
		if p.confirm(job) {
			return
		}
	}
	// Budget exhausted: leave the optimistic patch standing rather than
	// reverting to a worse number. The next natural refresh will settle it.
	metrics.Wallet().ObserveReconcileExhausted()
	p.log.Warn("reconciliation unconfirmed, leaving optimistic patch",
		"kind", job.Kind.String(),
		"chain", job.Key.ChainID,
		"attempts", p.maxAttempts,
	)
}

func (p *Poller) confirm(job Job) bool {
	ctx, cancel := context.WithTimeout(p.ctx, p.callTimeout)
	defer cancel()

	switch job.Kind {
	case operation.KindClaim:
		state, err := p.fetcher.FetchClaimState(ctx, job.Key.Account)
		if err != nil {
			return false
		}
		if state.LastClaimedDay >= job.ExpectedDay {
			p.store.SetClaimAuthoritative(job.Key.Account, state)
			return true
		}
		if !state.NextClaimAt.After(time.Now()) {
			// The record claims the action is available again without having
			// advanced: the backend write raced the read. Re-apply the block
			// and keep polling.
			p.store.BlockClaim(job.Key.Account, job.ExpectedDay, job.BlockUntil, time.Now())
		}
		return false
	case operation.KindDeposit, operation.KindWithdraw:
		pos, err := p.fetcher.FetchBalance(ctx, job.Key.ChainID, job.Key.Account)
		if err != nil || pos == nil {
			return false
		}
		if !p.advanced(job, pos) {
			return false
		}
		// The fetch completed now; stamping the write with the fetch time
		// lets a confirmed advancement supersede the optimistic patch.
		pos.ObservedAt = time.Now()
		return p.store.SetAuthoritative(job.Key, pos)
	default:
		return true
	}
}

func (p *Poller) advanced(job Job, pos *position.ChainPosition) bool {
	if job.ExpectedPrincipalMicro == nil || pos.PrincipalMicro == nil {
		return true
	}
	cmp := pos.PrincipalMicro.Cmp(job.ExpectedPrincipalMicro)
	if job.Kind == operation.KindWithdraw {
		return cmp <= 0
	}
	return cmp >= 0
}
