package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"yieldwallet/operation"
)

var (
	bucketOperations = []byte("operations")

	// ErrClosed is returned when the journal has been closed.
	ErrClosed = errors.New("journal: closed")
)

// Entry is one persisted operation record.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	Kind        string         `json:"kind"`
	Account     common.Address `json:"account"`
	ChainID     uint64         `json:"chainId"`
	AmountMicro string         `json:"amountMicro,omitempty"`
	TxHash      common.Hash    `json:"txHash"`
	RecordedAt  time.Time      `json:"recordedAt"`
}

// Journal persists completed operations to a local bolt database so history
// survives restarts even when the remote bookkeeping service is down. It
// satisfies the runner's Recorder interface.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOperations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one completed operation. Keys are ordered by a monotonic
// bucket sequence so iteration returns records in write order.
func (j *Journal) Record(_ context.Context, op *operation.Operation) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	if op == nil {
		return errors.New("journal: nil operation")
	}
	entry := Entry{
		ID:         op.ID,
		Kind:       op.Kind.String(),
		Account:    op.Account,
		ChainID:    op.ChainID,
		TxHash:     op.TxHash,
		RecordedAt: time.Now().UTC(),
	}
	if op.AmountMicro != nil {
		entry.AmountMicro = op.AmountMicro.String()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketOperations)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, payload)
	})
}

// List returns the most recent entries for an account, newest first, up to
// limit. A zero account matches every entry.
func (j *Journal) List(account common.Address, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketOperations).Cursor()
		for k, v := cursor.Last(); k != nil && len(entries) < limit; k, v = cursor.Prev() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if account != (common.Address{}) && entry.Account != account {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Amount parses the entry's amount back into micro units. Claims have none
// and return nil.
func (e Entry) Amount() *big.Int {
	if e.AmountMicro == "" {
		return nil
	}
	amount, ok := new(big.Int).SetString(e.AmountMicro, 10)
	if !ok {
		return nil
	}
	return amount
}
