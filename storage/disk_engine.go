package storage

import (
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cznic/mathutil"
	log "github.com/sirupsen/logrus"

	"github.com/florann/databend/common"
	"github.com/florann/databend/conf"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/failinject"
)

var nosyncWriteOptions = &pebble.WriteOptions{Sync: false}

// diskEngine stores through pebble under <DataDir>/pebble.
type diskEngine struct {
	lock     sync.RWMutex
	cnf      conf.Config
	pebble   *pebble.DB
	started  bool
	injector failinject.Injector
}

func newDiskEngine(cnf conf.Config, injector failinject.Injector) *diskEngine {
	return &diskEngine{
		cnf:      cnf,
		injector: injector,
	}
}

func (d *diskEngine) Name() string {
	return "pebble"
}

func (d *diskEngine) Start() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.started {
		return nil
	}
	if err := d.injector.GetFailpoint(FailpointOpen).CheckFail(); err != nil {
		return errors.NewStorageUnavailableError(err.Error())
	}
	pebbleDir := filepath.Join(d.cnf.DataDir, "pebble")
	// TODO use tuned options for Pebble rather than the defaults
	pebbleOptions := &pebble.Options{}
	peb, err := pebble.Open(pebbleDir, pebbleOptions)
	if err != nil {
		return errors.NewStorageUnavailableError(err.Error())
	}
	d.pebble = peb
	d.started = true
	log.Debugf("Opened pebble at %s", pebbleDir)
	return nil
}

func (d *diskEngine) Stop() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.started {
		return nil
	}
	d.started = false
	return errors.WithStack(d.pebble.Close())
}

func (d *diskEngine) Put(key []byte, value []byte) error {
	return errors.WithStack(d.pebble.Set(key, value, nosyncWriteOptions))
}

func (d *diskEngine) Get(key []byte) ([]byte, error) {
	v, closer, err := d.pebble.Get(key)
	defer common.InvokeCloser(closer)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// Must be copied as Pebble reuses the slices
	res := common.CopyByteSlice(v)
	return res, nil
}

func (d *diskEngine) Delete(key []byte) error {
	return errors.WithStack(d.pebble.Delete(key, nosyncWriteOptions))
}

func (d *diskEngine) WriteBatch(batch *WriteBatch) error {
	pebBatch := d.pebble.NewBatch()
	for _, pair := range batch.puts {
		if err := pebBatch.Set(pair.Key, pair.Value, nil); err != nil {
			return errors.WithStack(err)
		}
	}
	for _, key := range batch.deletes {
		if err := pebBatch.Delete(key, nil); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(d.pebble.Apply(pebBatch, nosyncWriteOptions))
}

func (d *diskEngine) Scan(startKeyPrefix []byte, endKeyPrefix []byte, limit int) ([]KVPair, error) {
	if startKeyPrefix == nil {
		panic("startKeyPrefix cannot be nil")
	}
	iterOptions := &pebble.IterOptions{LowerBound: startKeyPrefix, UpperBound: endKeyPrefix}
	iter := d.pebble.NewIter(iterOptions)
	defer common.InvokeCloser(iter)
	iter.SeekGE(startKeyPrefix)
	count := 0
	var pairs []KVPair
	if limit > 0 {
		pairs = make([]KVPair, 0, mathutil.Min(limit, maxScanPrealloc))
	}
	if iter.Valid() {
		for limit == -1 || count < limit {
			k := iter.Key()
			v := iter.Value()
			pairs = append(pairs, KVPair{
				Key:   common.CopyByteSlice(k), // Must be copied as Pebble reuses the slices
				Value: common.CopyByteSlice(v),
			})
			count++
			if !iter.Next() {
				break
			}
		}
	}
	return pairs, nil
}
