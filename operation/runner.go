package operation

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"yieldwallet/observability/metrics"
)

const (
	defaultSettleDelay = 8 * time.Second
	defaultResetDelay  = 2 * time.Second
	defaultCallTimeout = 15 * time.Second
)

// Runner drives one deposit, withdrawal or claim through the lifecycle
// gas_check → gas_drip (optional) → signing → submitting → complete. A single
// runner handles all kinds; only the submit call differs per kind, so there
// is exactly one copy of the transition logic.
//
// The runner is synchronous between suspension points: the only places
// execution waits are collaborator round-trips, the drip settle delay and the
// completion reset delay, and each of those honours context cancellation.
type Runner struct {
	account   common.Address
	gas       GasChecker
	faucet    Faucet
	signer    Signer
	submitter Submitter
	recorder  Recorder
	available AvailableFunc

	onComplete func(*Operation)

	settleDelay time.Duration
	resetDelay  time.Duration
	callTimeout time.Duration

	log      *slog.Logger
	inflight atomic.Bool
}

// NewRunner constructs a runner for one account wired to its collaborators.
func NewRunner(account common.Address, gas GasChecker, faucet Faucet, signer Signer, submitter Submitter) *Runner {
	return &Runner{
		account:     account,
		gas:         gas,
		faucet:      faucet,
		signer:      signer,
		submitter:   submitter,
		settleDelay: defaultSettleDelay,
		resetDelay:  defaultResetDelay,
		callTimeout: defaultCallTimeout,
		log:         slog.Default(),
	}
}

// SetRecorder wires the best-effort bookkeeping collaborator.
func (r *Runner) SetRecorder(rec Recorder) {
	if r == nil {
		return
	}
	r.recorder = rec
}

// SetAvailableFunc wires the balance lookup used for input validation.
func (r *Runner) SetAvailableFunc(fn AvailableFunc) {
	if r == nil {
		return
	}
	r.available = fn
}

// SetOnComplete registers the hook invoked with the finished operation before
// the complete transition is emitted. The reconciliation poller hangs off
// this.
func (r *Runner) SetOnComplete(fn func(*Operation)) {
	if r == nil {
		return
	}
	r.onComplete = fn
}

// SetDelays overrides the drip settle delay and the post-completion reset
// delay.
func (r *Runner) SetDelays(settle, reset time.Duration) {
	if r == nil {
		return
	}
	if settle >= 0 {
		r.settleDelay = settle
	}
	if reset >= 0 {
		r.resetDelay = reset
	}
}

// SetCallTimeout bounds every collaborator round-trip. A timed-out call is a
// failure, never an indefinite suspension.
func (r *Runner) SetCallTimeout(d time.Duration) {
	if r == nil {
		return
	}
	if d > 0 {
		r.callTimeout = d
	}
}

// SetLogger overrides the structured logger.
func (r *Runner) SetLogger(log *slog.Logger) {
	if r == nil || log == nil {
		return
	}
	r.log = log
}

// Run validates the request, claims the single in-flight slot and starts the
// state machine. Validation problems and a busy runner are reported
// synchronously; afterwards every transition is delivered on the returned
// channel, which closes once the machine has reset to input.
//
// Cancelling ctx aborts progression at the next checkpoint. It cannot
// un-broadcast a transaction that has already been submitted.
func (r *Runner) Run(ctx context.Context, kind Kind, chainID uint64, amountMicro *big.Int) (<-chan Transition, error) {
	if r == nil {
		return nil, errors.New("operation: runner not configured")
	}
	if !kind.Valid() {
		return nil, &ValidationError{Reason: "unknown operation kind"}
	}
	if err := r.validateAmount(ctx, kind, chainID, amountMicro); err != nil {
		return nil, err
	}
	if !r.inflight.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}

	op := &Operation{
		ID:      uuid.New(),
		Kind:    kind,
		Account: r.account,
		ChainID: chainID,
		State:   StateInput,
	}
	if amountMicro != nil {
		op.AmountMicro = new(big.Int).Set(amountMicro)
	}

	ch := make(chan Transition, 8)
	go r.drive(ctx, op, ch)
	return ch, nil
}

func (r *Runner) validateAmount(ctx context.Context, kind Kind, chainID uint64, amountMicro *big.Int) error {
	if kind == KindClaim {
		if amountMicro != nil && amountMicro.Sign() != 0 {
			return &ValidationError{Reason: "claims do not take an amount"}
		}
		return nil
	}
	if amountMicro == nil || amountMicro.Sign() <= 0 {
		return &ValidationError{Reason: "amount must be positive"}
	}
	if r.available == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	available, err := r.available(callCtx, kind, chainID)
	if err != nil {
		return err
	}
	if available == nil || amountMicro.Cmp(available) > 0 {
		return &ValidationError{Reason: "amount exceeds available balance"}
	}
	return nil
}

func (r *Runner) drive(ctx context.Context, op *Operation, ch chan<- Transition) {
	start := time.Now()
	defer close(ch)
	defer r.inflight.Store(false)

	emit := func(state State) {
		op.State = state
		ch <- Transition{State: state, TxHash: op.TxHash}
	}
	fail := func(err error) {
		op.State = StateFailed
		op.Err = err
		r.log.Warn("operation failed",
			"id", op.ID.String(),
			"kind", op.Kind.String(),
			"chain", op.ChainID,
			"error", err,
		)
		metrics.Wallet().ObserveOperation(op.Kind.String(), "failed", time.Since(start).Seconds())
		ch <- Transition{State: StateFailed, Err: err}
		ch <- Transition{State: StateInput}
	}

	// Gas check.
	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}
	emit(StateGasCheck)
	report, err := r.checkGas(ctx, op.ChainID)
	if err != nil {
		fail(err)
		return
	}

	// Gas drip, only when the signer cannot pay fees.
	if !report.HasEnoughGas {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		emit(StateGasDrip)
		op.GasDripRequested = true
		if err := r.requestDrip(ctx, op.ChainID); err != nil {
			fail(err)
			return
		}
		// Give the drip transaction time to be indexed before signing.
		if err := r.sleep(ctx, r.settleDelay); err != nil {
			fail(err)
			return
		}
	}

	// Signing.
	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}
	emit(StateSigning)
	signature, err := r.sign(ctx, op)
	if err != nil {
		fail(err)
		return
	}

	// Submission.
	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}
	emit(StateSubmitting)
	result, err := r.submit(ctx, op, signature)
	if err != nil {
		fail(err)
		return
	}
	if !result.Success {
		fail(&ProtocolError{Message: result.Error})
		return
	}
	op.TxHash = result.TxHash

	// Bookkeeping is best-effort: a failed write is a warning, never a
	// rollback of the broadcast transaction.
	if r.recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.callTimeout)
		if err := r.recorder.Record(recordCtx, op.Clone()); err != nil {
			r.log.Warn("bookkeeping write failed",
				"id", op.ID.String(),
				"tx", op.TxHash.Hex(),
				"error", err,
			)
		}
		cancel()
	}

	if r.onComplete != nil {
		r.onComplete(op.Clone())
	}
	metrics.Wallet().ObserveOperation(op.Kind.String(), "complete", time.Since(start).Seconds())
	emit(StateComplete)

	// Auto-reset the dialog to input after the success feedback has had a
	// moment on screen.
	if err := r.sleep(ctx, r.resetDelay); err == nil {
		emit(StateInput)
	}
}

func (r *Runner) checkGas(ctx context.Context, chainID uint64) (GasReport, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.gas.CheckGas(callCtx, chainID, r.account)
}

func (r *Runner) requestDrip(ctx context.Context, chainID uint64) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	_, err := r.faucet.RequestDrip(callCtx, chainID, r.account)
	switch {
	case err == nil:
		metrics.Wallet().ObserveDrip("ok")
		return nil
	default:
		var rateLimited *RateLimitedError
		if errors.As(err, &rateLimited) {
			metrics.Wallet().ObserveDrip("rate_limited")
		} else {
			metrics.Wallet().ObserveDrip("failed")
		}
		return err
	}
}

func (r *Runner) sign(ctx context.Context, op *Operation) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.signer.Sign(callCtx, op)
}

func (r *Runner) submit(ctx context.Context, op *Operation, signature []byte) (SubmitResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.submitter.Submit(callCtx, op.Kind, op.ChainID, op.AmountMicro, signature)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
