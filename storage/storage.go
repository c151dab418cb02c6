package storage

import (
	"fmt"

	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/failinject"
)

// FailpointOpen is checked when an operator is started, tests use it to exercise
// assembly failure paths.
const FailpointOpen = "storage_open"

// maxScanPrealloc caps the result capacity reserved up front by Scan so a large limit
// doesn't translate into a large allocation for a small result set
const maxScanPrealloc = 1000

type KVPair struct {
	Key   []byte
	Value []byte
}

// WriteBatch represents some puts and deletes that will be written atomically by the
// underlying storage engine
type WriteBatch struct {
	puts    []KVPair
	deletes [][]byte
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (wb *WriteBatch) AddPut(k []byte, v []byte) {
	wb.puts = append(wb.puts, KVPair{Key: k, Value: v})
}

func (wb *WriteBatch) AddDelete(k []byte) {
	wb.deletes = append(wb.deletes, k)
}

func (wb *WriteBatch) HasWrites() bool {
	return len(wb.puts) != 0 || len(wb.deletes) != 0
}

// Operator is the storage accessor bound into each query context. Implementations must be
// safe for concurrent use.
type Operator interface {

	// Put writes a single key
	Put(key []byte, value []byte) error

	// Get reads a single key, returns nil if the key does not exist
	Get(key []byte) ([]byte, error)

	// Delete removes a single key, removing a non existent key is not an error
	Delete(key []byte) error

	// WriteBatch writes a batch atomically
	WriteBatch(batch *WriteBatch) error

	// Scan returns pairs in key order from startKeyPrefix (inclusive) to endKeyPrefix
	// (exclusive). limit = -1 means no limit
	Scan(startKeyPrefix []byte, endKeyPrefix []byte, limit int) ([]KVPair, error)

	// Name identifies the engine in logs and errors
	Name() string

	Start() error

	Stop() error
}

// NewOperator creates the storage accessor for the configured engine. The returned operator
// performs no I/O until Start is called.
func NewOperator(cnf conf.Config, injector failinject.Injector) (Operator, error) {
	switch cnf.StorageEngine {
	case conf.StorageEngineMemory:
		return newMemEngine(injector), nil
	case conf.StorageEnginePebble:
		if cnf.DataDir == "" {
			return nil, errors.NewStorageUnavailableError("DataDir must be specified for the pebble storage engine")
		}
		return newDiskEngine(cnf, injector), nil
	default:
		return nil, errors.NewStorageUnavailableError(fmt.Sprintf("unknown storage engine %d", cnf.StorageEngine))
	}
}
