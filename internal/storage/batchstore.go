package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/serializer/v2/marshalutil"

	"github.com/veilswap/veilcore/internal/routing"
)

var ErrBatchNotFound = errors.New("routing batch not found")

// BatchStore persists routing batches with their segments. Writes and
// read-modify-write transitions are serialized under a store-wide lock
// so batch status changes are linearizable.
type BatchStore struct {
	mu    sync.Mutex
	store kvstore.KVStore
}

// NewBatchStore creates a batch store on the given backing store.
func NewBatchStore(store kvstore.KVStore) (*BatchStore, error) {
	realm, err := store.WithRealm([]byte{0x03})
	if err != nil {
		return nil, err
	}

	return &BatchStore{store: realm}, nil
}

// Put writes the batch and all its segments.
func (bs *BatchStore) Put(batch *routing.RoutingBatch) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	return bs.put(batch)
}

func (bs *BatchStore) put(batch *routing.RoutingBatch) error {
	value, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	return bs.store.Set(bs.batchKey(batch.ID), value)
}

// Update loads the batch, applies mutate and persists the result, all
// under the store lock. An error from mutate aborts without writing, so
// concurrent status transitions on the same batch see exactly one
// winner.
func (bs *BatchStore) Update(id string, mutate func(*routing.RoutingBatch) error) (*routing.RoutingBatch, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	batch, err := bs.Get(id)
	if err != nil {
		return nil, err
	}

	if err := mutate(batch); err != nil {
		return nil, err
	}

	if err := bs.put(batch); err != nil {
		return nil, err
	}

	return batch, nil
}

// Get loads a batch by ID.
func (bs *BatchStore) Get(id string) (*routing.RoutingBatch, error) {
	value, err := bs.store.Get(bs.batchKey(id))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
		}
		return nil, err
	}

	var batch routing.RoutingBatch
	if err := json.Unmarshal(value, &batch); err != nil {
		return nil, err
	}

	return &batch, nil
}

// ListByWallet returns all batches planned for the wallet.
func (bs *BatchStore) ListByWallet(walletAddress string) ([]*routing.RoutingBatch, error) {
	var batches []*routing.RoutingBatch
	var iterErr error

	prefix := []byte{StorePrefixBatch}
	if err := bs.store.Iterate(prefix, func(key kvstore.Key, value kvstore.Value) bool {
		var batch routing.RoutingBatch
		if err := json.Unmarshal(value, &batch); err != nil {
			iterErr = err
			return false
		}
		if batch.WalletAddress == walletAddress {
			batches = append(batches, &batch)
		}
		return true
	}); err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}

	return batches, nil
}

func (bs *BatchStore) batchKey(id string) []byte {
	ms := marshalutil.New(1 + len(id))
	ms.WriteByte(StorePrefixBatch)
	ms.WriteBytes([]byte(id))
	return ms.Bytes()
}
