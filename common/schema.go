package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/florann/databend/errors"
)

type DataType int

const (
	TypeUnknown DataType = iota
	TypeBoolean
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeFloat32
	TypeFloat64
	TypeUtf8
	TypeBinary
	TypeDate
	TypeDateTime
)

var typeNames = map[DataType]string{
	TypeBoolean:  "Boolean",
	TypeInt8:     "Int8",
	TypeInt16:    "Int16",
	TypeInt32:    "Int32",
	TypeInt64:    "Int64",
	TypeUInt8:    "UInt8",
	TypeUInt16:   "UInt16",
	TypeUInt32:   "UInt32",
	TypeUInt64:   "UInt64",
	TypeFloat32:  "Float32",
	TypeFloat64:  "Float64",
	TypeUtf8:     "Utf8",
	TypeBinary:   "Binary",
	TypeDate:     "Date",
	TypeDateTime: "DateTime",
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

func (t *DataType) Capture(tokens []string) error {
	text := strings.ToUpper(strings.Join(tokens, " "))
	switch text {
	case "BOOLEAN", "BOOL":
		*t = TypeBoolean
	case "INT8", "TINYINT":
		*t = TypeInt8
	case "INT16", "SMALLINT":
		*t = TypeInt16
	case "INT32", "INT":
		*t = TypeInt32
	case "INT64", "BIGINT":
		*t = TypeInt64
	case "UINT8":
		*t = TypeUInt8
	case "UINT16":
		*t = TypeUInt16
	case "UINT32":
		*t = TypeUInt32
	case "UINT64":
		*t = TypeUInt64
	case "FLOAT32", "FLOAT":
		*t = TypeFloat32
	case "FLOAT64", "DOUBLE":
		*t = TypeFloat64
	case "UTF8", "STRING", "VARCHAR":
		*t = TypeUtf8
	case "BINARY":
		*t = TypeBinary
	case "DATE":
		*t = TypeDate
	case "DATETIME", "TIMESTAMP":
		*t = TypeDateTime
	default:
		return errors.Errorf("unknown data type %s", text)
	}
	return nil
}

// ParseDataType resolves a type name, accepting the same aliases as Capture.
func ParseDataType(text string) (DataType, error) {
	var t DataType
	if err := t.Capture([]string{text}); err != nil {
		return TypeUnknown, err
	}
	return t, nil
}

// InferDataType from Go type.
func InferDataType(value interface{}) DataType {
	switch value.(type) {
	case string:
		return TypeUtf8
	case bool:
		return TypeBoolean
	case int, int64:
		return TypeInt64
	case int32:
		return TypeInt32
	case int16:
		return TypeInt16
	case int8:
		return TypeInt8
	case uint, uint64:
		return TypeUInt64
	case uint32:
		return TypeUInt32
	case uint16:
		return TypeUInt16
	case uint8:
		return TypeUInt8
	case float64:
		return TypeFloat64
	case float32:
		return TypeFloat32
	case []byte:
		return TypeBinary
	case time.Time:
		return TypeDateTime
	default:
		panic(fmt.Sprintf("can't infer data type of %T", value))
	}
}

type DataField struct {
	Name     string   `json:"name"`
	Type     DataType `json:"type"`
	Nullable bool     `json:"nullable,omitempty"`
}

func NewDataField(name string, dataType DataType, nullable bool) DataField {
	return DataField{Name: name, Type: dataType, Nullable: nullable}
}

func (f DataField) String() string {
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}

// DataSchema is an ordered list of fields. Lookups by name resolve to the first field
// with that name, names only need to be unambiguous within the scope that references them.
type DataSchema struct {
	fields []DataField
	index  map[string]int
}

func NewDataSchema(fields []DataField) *DataSchema {
	index := make(map[string]int, len(fields))
	for i, field := range fields {
		if _, ok := index[field.Name]; !ok {
			index[field.Name] = i
		}
	}
	fieldsCopy := make([]DataField, len(fields))
	copy(fieldsCopy, fields)
	return &DataSchema{fields: fieldsCopy, index: index}
}

func (s *DataSchema) Fields() []DataField {
	return s.fields
}

func (s *DataSchema) FieldCount() int {
	return len(s.fields)
}

func (s *DataSchema) HasField(name string) bool {
	_, ok := s.index[name]
	return ok
}

// FieldIndex returns the position of the named field, or -1 if the schema has no such field.
func (s *DataSchema) FieldIndex(name string) int {
	i, ok := s.index[name]
	if !ok {
		return -1
	}
	return i
}

func (s *DataSchema) FieldByName(name string) (*DataField, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, errors.NewUnknownFieldError(name, s.String())
	}
	return &s.fields[i], nil
}

func (s *DataSchema) String() string {
	sb := strings.Builder{}
	for i := range s.fields {
		sb.WriteString(s.fields[i].String())
		if i != len(s.fields)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

func (s *DataSchema) Equal(other *DataSchema) bool {
	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}
