package meta

import (
	"sort"
	"sync"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/failinject"
	"github.com/florann/databend/storage"
)

const (
	// SystemSchemaName is the name of the schema that houses system tables, similar to mysql's information_schema.
	SystemSchemaName = "system"
	// TableDefTableName is the name of the table that holds all table definitions.
	TableDefTableName = "tables"
	// OneTableName is a single row system table used by queries that have no table of their own.
	OneTableName = "one"
)

const (
	TableDefTableID uint64 = 1
	OneTableID      uint64 = 2

	// UserTableIDBase is the lowest table id handed out for user tables.
	UserTableIDBase uint64 = 1000
)

// FailpointStart is checked when the controller starts, tests use it to exercise
// assembly failure paths.
const FailpointStart = "catalog_start"

// TableDefTableInfo is a static definition of the table schema for the table definitions table.
var TableDefTableInfo = common.NewTableInfo(TableDefTableID, SystemSchemaName, TableDefTableName,
	common.NewDataSchema([]common.DataField{
		common.NewDataField("id", common.TypeUInt64, false),
		common.NewDataField("schema_name", common.TypeUtf8, false),
		common.NewDataField("name", common.TypeUtf8, false),
		common.NewDataField("definition", common.TypeUtf8, false),
	}))

var OneTableInfo = common.NewTableInfo(OneTableID, SystemSchemaName, OneTableName,
	common.NewDataSchema([]common.DataField{
		common.NewDataField("dummy", common.TypeUInt8, false),
	}))

// Controller is the catalog registry. It keeps the table metadata for every schema in memory
// and persists registered definitions through the storage operator so they survive a restart.
type Controller struct {
	lock       sync.RWMutex
	schemas    map[string]*common.Schema
	started    bool
	store      storage.Operator
	injector   failinject.Injector
	tableIDSeq uint64
}

func NewController(store storage.Operator, injector failinject.Injector) *Controller {
	return &Controller{
		lock:       sync.RWMutex{},
		schemas:    make(map[string]*common.Schema),
		store:      store,
		injector:   injector,
		tableIDSeq: UserTableIDBase,
	}
}

func (c *Controller) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	if err := c.injector.GetFailpoint(FailpointStart).CheckFail(); err != nil {
		return errors.NewCatalogUnavailableError(err.Error())
	}
	c.registerSystemSchema()
	c.started = true
	return nil
}

func (c *Controller) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	return nil
}

func (c *Controller) registerSystemSchema() {
	schema := c.getOrCreateSchema(SystemSchemaName)
	schema.PutTable(TableDefTableInfo.Name, TableDefTableInfo)
	schema.PutTable(OneTableInfo.Name, OneTableInfo)
}

func (c *Controller) GetSchema(schemaName string) (schema *common.Schema, ok bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.getSchema(schemaName)
}

func (c *Controller) getSchema(schemaName string) (schema *common.Schema, ok bool) {
	schema, ok = c.schemas[schemaName]
	return
}

func (c *Controller) GetOrCreateSchema(schemaName string) *common.Schema {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getOrCreateSchema(schemaName)
}

func (c *Controller) getOrCreateSchema(schemaName string) *common.Schema {
	schema, ok := c.schemas[schemaName]
	if !ok {
		schema = common.NewSchema(schemaName)
		c.schemas[schemaName] = schema
	}
	return schema
}

// GetTable resolves a table by schema and name.
func (c *Controller) GetTable(schemaName string, tableName string) (*common.TableInfo, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	schema, ok := c.schemas[schemaName]
	if !ok {
		return nil, errors.NewUnknownTableError(schemaName, tableName)
	}
	table, ok := schema.GetTable(tableName)
	if !ok {
		return nil, errors.NewUnknownTableError(schemaName, tableName)
	}
	return table, nil
}

// RegisterTable adds a table to the catalog, making it visible to new queries. If persist is
// set the definition is also written through the storage operator.
func (c *Controller) RegisterTable(tableInfo *common.TableInfo, persist bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	schema := c.getOrCreateSchema(tableInfo.SchemaName)
	if _, ok := schema.GetTable(tableInfo.Name); ok {
		return errors.NewTableAlreadyExistsError(tableInfo.SchemaName, tableInfo.Name)
	}
	schema.PutTable(tableInfo.Name, tableInfo)
	if tableInfo.ID >= c.tableIDSeq {
		c.tableIDSeq = tableInfo.ID + 1
	}
	if persist {
		buff, err := EncodeTableDefinition(tableInfo)
		if err != nil {
			return err
		}
		if err := c.store.Put(EncodeTableDefKey(tableInfo.SchemaName, tableInfo.Name), buff); err != nil {
			return errors.NewCatalogUnavailableError(err.Error())
		}
	}
	return nil
}

func (c *Controller) RemoveTable(schemaName string, tableName string, persist bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	schema, ok := c.schemas[schemaName]
	if !ok {
		return errors.NewUnknownSchemaError(schemaName)
	}
	table, ok := schema.GetTable(tableName)
	if !ok {
		return errors.NewUnknownTableError(schemaName, tableName)
	}
	if table.ID < UserTableIDBase {
		return errors.Errorf("cannot remove system table %s", table)
	}
	schema.DeleteTable(tableName)
	if persist {
		if err := c.store.Delete(EncodeTableDefKey(schemaName, tableName)); err != nil {
			return errors.NewCatalogUnavailableError(err.Error())
		}
	}
	return nil
}

// NextTableID hands out the id for the next user table.
func (c *Controller) NextTableID() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	id := c.tableIDSeq
	c.tableIDSeq++
	return id
}

func (c *Controller) ListSchemas() []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Controller) ListTables(schemaName string) ([]*common.TableInfo, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	schema, ok := c.schemas[schemaName]
	if !ok {
		return nil, errors.NewUnknownSchemaError(schemaName)
	}
	names := make([]string, 0, len(schema.Tables))
	for name := range schema.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	tables := make([]*common.TableInfo, len(names))
	for i, name := range names {
		tables[i] = schema.Tables[name]
	}
	return tables, nil
}
