package planner

import (
	"fmt"
	"strings"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
)

// Expression is a scalar expression appearing in a plan: a column reference, a literal,
// or a computation over them. ToField resolves the expression's output field against
// the schema of the node it runs over.
type Expression interface {
	String() string
	ToField(input *common.DataSchema) (common.DataField, error)
}

// FieldExpr is a reference to a column of the input schema by exact name.
type FieldExpr struct {
	Name string
}

func Field(name string) *FieldExpr {
	return &FieldExpr{Name: name}
}

func (e *FieldExpr) String() string {
	return e.Name
}

func (e *FieldExpr) ToField(input *common.DataSchema) (common.DataField, error) {
	// Column references inherit type and nullability from the source field.
	field, err := input.FieldByName(e.Name)
	if err != nil {
		return common.DataField{}, err
	}
	return *field, nil
}

type LiteralExpr struct {
	Value interface{}
}

func Lit(value interface{}) *LiteralExpr {
	return &LiteralExpr{Value: value}
}

func (e *LiteralExpr) String() string {
	return fmt.Sprintf("%v", e.Value)
}

func (e *LiteralExpr) ToField(input *common.DataSchema) (common.DataField, error) {
	return common.NewDataField(e.String(), common.InferDataType(e.Value), false), nil
}

// AliasExpr renames the field produced by its inner expression.
type AliasExpr struct {
	Expr      Expression
	AliasName string
}

func Alias(expr Expression, name string) *AliasExpr {
	return &AliasExpr{Expr: expr, AliasName: name}
}

func (e *AliasExpr) String() string {
	return fmt.Sprintf("%s as %s", e.Expr, e.AliasName)
}

func (e *AliasExpr) ToField(input *common.DataSchema) (common.DataField, error) {
	field, err := e.Expr.ToField(input)
	if err != nil {
		return common.DataField{}, err
	}
	field.Name = e.AliasName
	return field, nil
}

var comparisonOps = map[string]bool{
	"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"and": true, "or": true,
}

type BinaryExpr struct {
	Op    string
	Left  Expression
	Right Expression
}

func Binary(op string, left Expression, right Expression) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: left, Right: right}
}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

func (e *BinaryExpr) ToField(input *common.DataSchema) (common.DataField, error) {
	left, err := e.Left.ToField(input)
	if err != nil {
		return common.DataField{}, err
	}
	right, err := e.Right.ToField(input)
	if err != nil {
		return common.DataField{}, err
	}
	nullable := left.Nullable || right.Nullable
	if comparisonOps[strings.ToLower(e.Op)] {
		return common.NewDataField(e.String(), common.TypeBoolean, nullable), nil
	}
	// Arithmetic keeps the type of the left operand.
	return common.NewDataField(e.String(), left.Type, nullable), nil
}

var aggregateNames = map[string]bool{
	"sum": true, "count": true, "min": true, "max": true, "avg": true,
}

type FunctionExpr struct {
	Name string
	Args []Expression
}

func Fn(name string, args ...Expression) *FunctionExpr {
	return &FunctionExpr{Name: name, Args: args}
}

func (e *FunctionExpr) String() string {
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

func (e *FunctionExpr) IsAggregate() bool {
	return aggregateNames[strings.ToLower(e.Name)]
}

func (e *FunctionExpr) ToField(input *common.DataSchema) (common.DataField, error) {
	switch strings.ToLower(e.Name) {
	case "count":
		if len(e.Args) > 0 {
			if _, err := e.Args[0].ToField(input); err != nil {
				return common.DataField{}, err
			}
		}
		return common.NewDataField(e.String(), common.TypeUInt64, false), nil
	case "avg":
		if len(e.Args) != 1 {
			return common.DataField{}, errors.Errorf("%s requires exactly one argument", e.Name)
		}
		if _, err := e.Args[0].ToField(input); err != nil {
			return common.DataField{}, err
		}
		return common.NewDataField(e.String(), common.TypeFloat64, true), nil
	case "sum", "min", "max":
		if len(e.Args) != 1 {
			return common.DataField{}, errors.Errorf("%s requires exactly one argument", e.Name)
		}
		arg, err := e.Args[0].ToField(input)
		if err != nil {
			return common.DataField{}, err
		}
		// Aggregates over an empty input produce null.
		return common.NewDataField(e.String(), arg.Type, true), nil
	default:
		if len(e.Args) == 0 {
			return common.NewDataField(e.String(), common.TypeUtf8, true), nil
		}
		arg, err := e.Args[0].ToField(input)
		if err != nil {
			return common.DataField{}, err
		}
		return common.NewDataField(e.String(), arg.Type, true), nil
	}
}

// IsAggregate reports whether an expression is an aggregate function call, looking
// through aliases.
func IsAggregate(expr Expression) bool {
	switch e := expr.(type) {
	case *FunctionExpr:
		return e.IsAggregate()
	case *AliasExpr:
		return IsAggregate(e.Expr)
	}
	return false
}
