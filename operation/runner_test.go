package operation

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")

type mockGas struct {
	report GasReport
	err    error
}

func (m *mockGas) CheckGas(context.Context, uint64, common.Address) (GasReport, error) {
	return m.report, m.err
}

type mockFaucet struct {
	calls int
	err   error
}

func (m *mockFaucet) RequestDrip(context.Context, uint64, common.Address) (DripResult, error) {
	m.calls++
	if m.err != nil {
		return DripResult{}, m.err
	}
	return DripResult{TxHash: common.HexToHash("0x01")}, nil
}

type mockSigner struct {
	err   error
	block chan struct{}
}

func (m *mockSigner) Sign(ctx context.Context, _ *Operation) ([]byte, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return []byte{0x5e, 0x01}, nil
}

type mockSubmitter struct {
	result SubmitResult
	err    error
}

func (m *mockSubmitter) Submit(context.Context, Kind, uint64, *big.Int, []byte) (SubmitResult, error) {
	return m.result, m.err
}

type mockRecorder struct {
	calls int
	err   error
}

func (m *mockRecorder) Record(context.Context, *Operation) error {
	m.calls++
	return m.err
}

func newTestRunner(gas *mockGas, faucet *mockFaucet, signer *mockSigner, submitter *mockSubmitter) *Runner {
	r := NewRunner(testAccount, gas, faucet, signer, submitter)
	r.SetDelays(0, 0)
	r.SetCallTimeout(time.Second)
	return r
}

func collect(t *testing.T, ch <-chan Transition) []Transition {
	t.Helper()
	var out []Transition
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, tr)
		case <-timeout:
			t.Fatalf("timed out collecting transitions, got %v", out)
		}
	}
}

func states(transitions []Transition) []State {
	out := make([]State, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, tr.State)
	}
	return out
}

func sameStates(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRunHappyPathWithEnoughGas(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	faucet := &mockFaucet{}
	submitter := &mockSubmitter{result: SubmitResult{Success: true, TxHash: common.HexToHash("0xbeef")}}
	recorder := &mockRecorder{}
	runner := newTestRunner(gas, faucet, &mockSigner{}, submitter)
	runner.SetRecorder(recorder)

	var completed *Operation
	runner.SetOnComplete(func(op *Operation) { completed = op })

	ch, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(5_000000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	want := []State{StateGasCheck, StateSigning, StateSubmitting, StateComplete, StateInput}
	if !sameStates(states(transitions), want) {
		t.Fatalf("unexpected transitions: %v", states(transitions))
	}
	if faucet.calls != 0 {
		t.Fatalf("faucet called with sufficient gas")
	}
	if recorder.calls != 1 {
		t.Fatalf("recorder calls: %d", recorder.calls)
	}
	if completed == nil || completed.TxHash != common.HexToHash("0xbeef") {
		t.Fatalf("completion hook missing tx hash: %+v", completed)
	}
}

func TestRunDripsWhenGasIsShort(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: false}}
	faucet := &mockFaucet{}
	submitter := &mockSubmitter{result: SubmitResult{Success: true, TxHash: common.HexToHash("0x02")}}
	runner := newTestRunner(gas, faucet, &mockSigner{}, submitter)

	ch, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(1_000000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	want := []State{StateGasCheck, StateGasDrip, StateSigning, StateSubmitting, StateComplete, StateInput}
	if !sameStates(states(transitions), want) {
		t.Fatalf("unexpected transitions: %v", states(transitions))
	}
	if faucet.calls != 1 {
		t.Fatalf("faucet calls: %d", faucet.calls)
	}
}

func TestRunRejectsSecondOperationInFlight(t *testing.T) {
	signer := &mockSigner{block: make(chan struct{})}
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	submitter := &mockSubmitter{result: SubmitResult{Success: true}}
	runner := newTestRunner(gas, &mockFaucet{}, signer, submitter)

	ch, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(1_000000))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Wait until the first operation reaches signing.
	for tr := range ch {
		if tr.State == StateSigning {
			break
		}
	}

	if _, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(1_000000)); !errors.Is(err, ErrInFlight) {
		t.Fatalf("second run: got %v want ErrInFlight", err)
	}

	close(signer.block)
	transitions := collect(t, ch)
	for _, tr := range transitions {
		if tr.State == StateFailed {
			t.Fatalf("first operation disturbed by rejected second attempt: %v", tr.Err)
		}
	}
}

func TestRunSurfacesRateLimitWait(t *testing.T) {
	nextAvailable := time.Now().Add(3 * time.Hour)
	gas := &mockGas{report: GasReport{HasEnoughGas: false}}
	faucet := &mockFaucet{err: &RateLimitedError{NextAvailableAt: nextAvailable}}
	runner := newTestRunner(gas, faucet, &mockSigner{}, &mockSubmitter{})

	ch, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(1_000000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	want := []State{StateGasCheck, StateGasDrip, StateFailed, StateInput}
	if !sameStates(states(transitions), want) {
		t.Fatalf("unexpected transitions: %v", states(transitions))
	}
	failure := transitions[2].Err
	if failure == nil || !strings.Contains(failure.Error(), "3 hours") {
		t.Fatalf("rate limit message missing wait duration: %v", failure)
	}
	if strings.Contains(failure.Error(), nextAvailable.Format("2006")) {
		t.Fatalf("raw timestamp leaked to user: %v", failure)
	}
}

func TestRunFailsBackToInputWhenWalletLocked(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	runner := newTestRunner(gas, &mockFaucet{}, &mockSigner{err: ErrWalletLocked}, &mockSubmitter{})

	ch, err := runner.Run(context.Background(), KindWithdraw, 1, big.NewInt(1_000000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	want := []State{StateGasCheck, StateSigning, StateFailed, StateInput}
	if !sameStates(states(transitions), want) {
		t.Fatalf("unexpected transitions: %v", states(transitions))
	}
	if !errors.Is(transitions[2].Err, ErrWalletLocked) {
		t.Fatalf("unexpected failure: %v", transitions[2].Err)
	}
}

func TestRunSurfacesProtocolErrorVerbatim(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	submitter := &mockSubmitter{result: SubmitResult{Success: false, Error: "pool supply cap exceeded"}}
	runner := newTestRunner(gas, &mockFaucet{}, &mockSigner{}, submitter)

	ch, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(1_000000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	failure := transitions[len(transitions)-2].Err
	var protoErr *ProtocolError
	if !errors.As(failure, &protoErr) || !strings.Contains(failure.Error(), "pool supply cap exceeded") {
		t.Fatalf("protocol message not surfaced verbatim: %v", failure)
	}
}

func TestRunValidatesInput(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	runner := newTestRunner(gas, &mockFaucet{}, &mockSigner{}, &mockSubmitter{})
	runner.SetAvailableFunc(func(context.Context, Kind, uint64) (*big.Int, error) {
		return big.NewInt(10_000000), nil
	})

	var validationErr *ValidationError
	if _, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(0)); !errors.As(err, &validationErr) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := runner.Run(context.Background(), KindDeposit, 1, nil); !errors.As(err, &validationErr) {
		t.Fatalf("nil amount: got %v", err)
	}
	if _, err := runner.Run(context.Background(), KindDeposit, 1, big.NewInt(11_000000)); !errors.As(err, &validationErr) {
		t.Fatalf("excess amount: got %v", err)
	}
	if _, err := runner.Run(context.Background(), KindClaim, 1, big.NewInt(1)); !errors.As(err, &validationErr) {
		t.Fatalf("claim with amount: got %v", err)
	}
	if _, err := runner.Run(context.Background(), Kind(99), 1, big.NewInt(1)); !errors.As(err, &validationErr) {
		t.Fatalf("bad kind: got %v", err)
	}
}

func TestRunCompletesDespiteRecorderFailure(t *testing.T) {
	gas := &mockGas{report: GasReport{HasEnoughGas: true}}
	submitter := &mockSubmitter{result: SubmitResult{Success: true, TxHash: common.HexToHash("0x03")}}
	recorder := &mockRecorder{err: errors.New("ledger service unavailable")}
	runner := newTestRunner(gas, &mockFaucet{}, &mockSigner{}, submitter)
	runner.SetRecorder(recorder)

	ch, err := runner.Run(context.Background(), KindClaim, 1, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	transitions := collect(t, ch)
	sawComplete := false
	for _, tr := range transitions {
		if tr.State == StateComplete {
			sawComplete = true
		}
		if tr.State == StateFailed {
			t.Fatalf("recorder failure blocked completion: %v", tr.Err)
		}
	}
	if !sawComplete {
		t.Fatalf("operation never completed: %v", states(transitions))
	}
	if recorder.calls != 1 {
		t.Fatalf("recorder calls: %d", recorder.calls)
	}
}

func TestRateLimitedWaitFormatting(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cases := []struct {
		in   time.Duration
		want string
	}{
		{3 * time.Hour, "3 hours"},
		{time.Hour, "1 hour"},
		{61 * time.Minute, "2 hours"},
		{45 * time.Minute, "45 minutes"},
		{30 * time.Second, "less than a minute"},
		{72 * time.Hour, "3 days"},
		{-time.Minute, "a moment"},
	}
	for _, tc := range cases {
		err := &RateLimitedError{NextAvailableAt: now.Add(tc.in)}
		if got := err.Wait(now); got != tc.want {
			t.Fatalf("wait %v: got %q want %q", tc.in, got, tc.want)
		}
	}
}
