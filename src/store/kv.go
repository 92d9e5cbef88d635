package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/homenode/src/common"
)

// KV is the private key-value storage of one application.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

// KVFactory returns the KV of an application.
type KVFactory func(appID string) (KV, error)

// InmemKVFactory returns a KVFactory handing out in-memory stores, one per
// application, created on first use.
func InmemKVFactory() KVFactory {
	var mu sync.Mutex
	stores := make(map[string]*InmemKV)
	return func(appID string) (KV, error) {
		mu.Lock()
		defer mu.Unlock()
		kv, ok := stores[appID]
		if !ok {
			kv = NewInmemKV()
			stores[appID] = kv
		}
		return kv, nil
	}
}

// InmemKV ...
type InmemKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewInmemKV ...
func NewInmemKV() *InmemKV {
	return &InmemKV{values: make(map[string][]byte)}
}

// Get ...
func (kv *InmemKV) Get(key string) ([]byte, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.values[key]
	if !ok {
		return nil, common.NewStoreErr("KV", common.KeyNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

// Set ...
func (kv *InmemKV) Set(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete ...
func (kv *InmemKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.values, key)
	return nil
}

// Keys returns the sorted keys.
func (kv *InmemKV) Keys() ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	res := make([]string, 0, len(kv.values))
	for k := range kv.values {
		res = append(res, k)
	}
	sort.Strings(res)
	return res, nil
}

type badgerKV struct {
	db     *badger.DB
	prefix string
}

func (kv *badgerKV) Get(key string) ([]byte, error) {
	var val []byte
	err := kv.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kv.prefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	return val, mapError(err, "KV", key)
}

func (kv *badgerKV) Set(key string, value []byte) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kv.prefix+key), value)
	})
}

func (kv *badgerKV) Delete(key string) error {
	return kv.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(kv.prefix + key))
	})
}

// Keys iterates in key order, which is already sorted.
func (kv *badgerKV) Keys() ([]string, error) {
	res := []string{}
	prefix := []byte(kv.prefix)
	err := kv.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			res = append(res, strings.TrimPrefix(string(it.Item().Key()), kv.prefix))
		}
		return nil
	})
	return res, err
}
