package operation

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// GasReport is the result of a native-gas balance probe for the signer on the
// target chain.
type GasReport struct {
	HasEnoughGas bool
	BalanceWei   *uint256.Int
	RequiredWei  *uint256.Int
}

// DripResult reports a successful faucet top-up.
type DripResult struct {
	TxHash common.Hash
}

// SubmitResult is the protocol collaborator's answer to a broadcast attempt.
type SubmitResult struct {
	Success bool
	TxHash  common.Hash
	Error   string
}

// GasChecker probes the signer's native-gas balance on a chain.
type GasChecker interface {
	CheckGas(ctx context.Context, chainID uint64, account common.Address) (GasReport, error)
}

// Faucet requests a rate-limited native-gas top-up from an external service.
// Implementations return *RateLimitedError when the service answers with
// HTTP 429 semantics.
type Faucet interface {
	RequestDrip(ctx context.Context, chainID uint64, account common.Address) (DripResult, error)
}

// Signer is the external wallet-key collaborator. It returns ErrWalletLocked
// when no signing capability is available.
type Signer interface {
	Sign(ctx context.Context, op *Operation) ([]byte, error)
}

// Submitter constructs and broadcasts the protocol-specific transaction.
type Submitter interface {
	Submit(ctx context.Context, kind Kind, chainID uint64, amountMicro *big.Int, signature []byte) (SubmitResult, error)
}

// Recorder performs the best-effort bookkeeping write after a broadcast.
// Failures here never roll back an otherwise-successful on-chain operation.
type Recorder interface {
	Record(ctx context.Context, op *Operation) error
}

// AvailableFunc reports the spendable micro-unit balance for an operation
// kind on a chain: liquid balance for deposits, position balance for
// withdrawals.
type AvailableFunc func(ctx context.Context, kind Kind, chainID uint64) (*big.Int, error)
