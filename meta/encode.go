package meta

import (
	"encoding/json"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
)

// Table definitions are persisted as JSON under a reserved key prefix in the storage engine.
// Key layout: meta/tables/<schema_name>/<table_name>
var tableDefKeyPrefix = []byte("meta/tables/")

func EncodeTableDefKey(schemaName string, tableName string) []byte {
	key := make([]byte, 0, len(tableDefKeyPrefix)+len(schemaName)+len(tableName)+1)
	key = append(key, tableDefKeyPrefix...)
	key = append(key, schemaName...)
	key = append(key, '/')
	key = append(key, tableName...)
	return key
}

// TableDefKeyRange returns the scan bounds covering every persisted table definition.
func TableDefKeyRange() (startPrefix []byte, endPrefix []byte) {
	return tableDefKeyPrefix, common.IncrementBytesBigEndian(tableDefKeyPrefix)
}

// EncodeTableDefinition encodes a common.TableInfo into its persisted form.
func EncodeTableDefinition(info *common.TableInfo) ([]byte, error) {
	buff, err := json.Marshal(info)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return buff, nil
}

// DecodeTableDefinition decodes a persisted table definition into a common.TableInfo.
func DecodeTableDefinition(buff []byte) (*common.TableInfo, error) {
	info := &common.TableInfo{}
	if err := json.Unmarshal(buff, info); err != nil {
		return nil, errors.WithStack(err)
	}
	return info, nil
}
