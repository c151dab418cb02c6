package common

import (
	"fmt"
)

// TableInfo describes a table registered in the catalog.
type TableInfo struct {
	ID         uint64      `json:"id"`
	SchemaName string      `json:"schema_name"`
	Name       string      `json:"name"`
	Fields     []DataField `json:"fields"`
}

func NewTableInfo(id uint64, schemaName string, name string, schema *DataSchema) *TableInfo {
	return &TableInfo{
		ID:         id,
		SchemaName: schemaName,
		Name:       name,
		Fields:     schema.Fields(),
	}
}

func (i *TableInfo) Schema() *DataSchema {
	return NewDataSchema(i.Fields)
}

func (i *TableInfo) String() string {
	return fmt.Sprintf("table[name=%s.%s,id=%d]", i.SchemaName, i.Name, i.ID)
}

// Schema is a named collection of tables in the catalog.
type Schema struct {
	Name   string
	Tables map[string]*TableInfo
}

func NewSchema(name string) *Schema {
	return &Schema{
		Name:   name,
		Tables: make(map[string]*TableInfo),
	}
}

func (s *Schema) PutTable(name string, table *TableInfo) {
	s.Tables[name] = table
}

func (s *Schema) GetTable(name string) (*TableInfo, bool) {
	table, ok := s.Tables[name]
	return table, ok
}

func (s *Schema) DeleteTable(name string) {
	delete(s.Tables, name)
}
