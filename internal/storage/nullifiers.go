package storage

import (
	"sync"

	"github.com/iotaledger/hive.go/kvstore"
	"github.com/iotaledger/hive.go/serializer/v2/marshalutil"
)

// ConsumedNullifierStore is the persistent consumed-nullifier set. The
// mutex serializes TryConsume so that of two concurrent consumers of the
// same nullifier exactly one wins.
type ConsumedNullifierStore struct {
	mu    sync.Mutex
	store kvstore.KVStore
}

// NewConsumedNullifierStore creates a nullifier set on the given backing
// store.
func NewConsumedNullifierStore(store kvstore.KVStore) (*ConsumedNullifierStore, error) {
	realm, err := store.WithRealm([]byte{0x02})
	if err != nil {
		return nil, err
	}

	return &ConsumedNullifierStore{store: realm}, nil
}

// Contains reports whether the nullifier has already been consumed.
func (ns *ConsumedNullifierStore) Contains(nullifier []byte) (bool, error) {
	return ns.store.Has(ns.key(nullifier))
}

// TryConsume atomically records the nullifier as used. Returns false if
// it was already present.
func (ns *ConsumedNullifierStore) TryConsume(nullifier []byte) (bool, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	key := ns.key(nullifier)

	has, err := ns.store.Has(key)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	if err := ns.store.Set(key, []byte{1}); err != nil {
		return false, err
	}

	return true, nil
}

func (ns *ConsumedNullifierStore) key(nullifier []byte) []byte {
	ms := marshalutil.New(1 + len(nullifier))
	ms.WriteByte(StorePrefixConsumed)
	ms.WriteBytes(nullifier)
	return ms.Bytes()
}
