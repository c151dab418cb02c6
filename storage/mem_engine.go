package storage

import (
	"bytes"
	"sync"

	"github.com/cznic/mathutil"
	"github.com/google/btree"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/failinject"
)

// memEngine keeps all data in an in-process btree. Used by test servers and standalone mode
// where nothing needs to survive a restart.
type memEngine struct {
	mu       sync.RWMutex
	btree    *btree.BTree
	started  bool
	injector failinject.Injector
}

func newMemEngine(injector failinject.Injector) *memEngine {
	return &memEngine{
		btree:    btree.New(3),
		injector: injector,
	}
}

type kvWrapper struct {
	key   []byte
	value []byte
}

func (k kvWrapper) Less(than btree.Item) bool {
	otherKVwrapper := than.(*kvWrapper) // nolint: forcetypeassert
	return bytes.Compare(k.key, otherKVwrapper.key) < 0
}

func (m *memEngine) Name() string {
	return "memory"
}

func (m *memEngine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if err := m.injector.GetFailpoint(FailpointOpen).CheckFail(); err != nil {
		return errors.NewStorageUnavailableError(err.Error())
	}
	m.started = true
	return nil
}

func (m *memEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

func (m *memEngine) Put(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putInternal(&kvWrapper{key: common.CopyByteSlice(key), value: common.CopyByteSlice(value)})
	return nil
}

func (m *memEngine) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if item := m.btree.Get(&kvWrapper{key: key}); item != nil {
		wrapper := item.(*kvWrapper) // nolint: forcetypeassert
		return wrapper.value, nil
	}
	return nil, nil
}

func (m *memEngine) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.btree.Delete(&kvWrapper{key: key})
	return nil
}

func (m *memEngine) WriteBatch(batch *WriteBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range batch.puts {
		m.putInternal(&kvWrapper{key: common.CopyByteSlice(pair.Key), value: common.CopyByteSlice(pair.Value)})
	}
	for _, key := range batch.deletes {
		m.btree.Delete(&kvWrapper{key: key})
	}
	return nil
}

func (m *memEngine) Scan(startKeyPrefix []byte, endKeyPrefix []byte, limit int) ([]KVPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if startKeyPrefix == nil {
		panic("startKeyPrefix cannot be nil")
	}
	var result []KVPair
	if limit > 0 {
		result = make([]KVPair, 0, mathutil.Min(limit, maxScanPrealloc))
	}
	count := 0
	resFunc := func(i btree.Item) bool {
		wrapper := i.(*kvWrapper) // nolint: forcetypeassert
		if endKeyPrefix != nil && bytes.Compare(wrapper.key, endKeyPrefix) >= 0 {
			return false
		}
		result = append(result, KVPair{
			Key:   wrapper.key,
			Value: wrapper.value,
		})
		count++
		return limit == -1 || count < limit
	}
	m.btree.AscendGreaterOrEqual(&kvWrapper{key: startKeyPrefix}, resFunc)
	return result, nil
}

func (m *memEngine) putInternal(item *kvWrapper) {
	m.btree.ReplaceOrInsert(item)
}
