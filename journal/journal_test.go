package journal

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"yieldwallet/operation"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openTestJournal(t)
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	for i := int64(1); i <= 3; i++ {
		op := &operation.Operation{
			ID:          uuid.New(),
			Kind:        operation.KindDeposit,
			Account:     account,
			ChainID:     1,
			AmountMicro: big.NewInt(i * 1_000000),
			TxHash:      common.BigToHash(big.NewInt(i)),
		}
		require.NoError(t, j.Record(context.Background(), op))
	}

	entries, err := j.List(account, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	require.Zero(t, entries[0].Amount().Cmp(big.NewInt(3_000000)))
	require.Equal(t, "deposit", entries[0].Kind)
}

func TestListFiltersByAccount(t *testing.T) {
	j := openTestJournal(t)
	alice := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	for _, account := range []common.Address{alice, bob, alice} {
		op := &operation.Operation{ID: uuid.New(), Kind: operation.KindClaim, Account: account, ChainID: 1}
		require.NoError(t, j.Record(context.Background(), op))
	}

	entries, err := j.List(alice, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = j.List(common.Address{}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestListHonoursLimit(t *testing.T) {
	j := openTestJournal(t)
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	for i := 0; i < 5; i++ {
		op := &operation.Operation{ID: uuid.New(), Kind: operation.KindWithdraw, Account: account, ChainID: 1, AmountMicro: big.NewInt(1)}
		require.NoError(t, j.Record(context.Background(), op))
	}
	entries, err := j.List(account, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRecordRejectsNilOperation(t *testing.T) {
	j := openTestJournal(t)
	require.Error(t, j.Record(context.Background(), nil))
}
