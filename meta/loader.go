package meta

import (
	"sort"

	"github.com/cznic/sortutil"
	log "github.com/sirupsen/logrus"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/storage"
)

// Loader is a service that reads persisted table definitions from storage on startup and
// applies them to the catalog controller. Definitions are applied in ascending table id
// order, the order they were created in.
type Loader struct {
	meta  *Controller
	store storage.Operator
}

func NewLoader(m *Controller, store storage.Operator) *Loader {
	return &Loader{
		meta:  m,
		store: store,
	}
}

func (l *Loader) Start() error {
	startPrefix, endPrefix := TableDefKeyRange()
	pairs, err := l.store.Scan(startPrefix, endPrefix, -1)
	if err != nil {
		return errors.NewCatalogUnavailableError(err.Error())
	}
	byID := make(map[uint64]*common.TableInfo, len(pairs))
	ids := make(sortutil.Uint64Slice, 0, len(pairs))
	for _, pair := range pairs {
		info, err := DecodeTableDefinition(pair.Value)
		if err != nil {
			return err
		}
		byID[info.ID] = info
		ids = append(ids, info.ID)
		log.Debugf("Read %s from storage", info)
	}
	sort.Sort(ids)
	for _, id := range ids {
		if err := l.meta.RegisterTable(byID[id], false); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) Stop() error {
	return nil
}
