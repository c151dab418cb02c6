package planner

import (
	"fmt"
	"strings"

	"github.com/florann/databend/common"
)

// PlanNode is one logical operator in a query plan. Trees are acyclic, finite and
// immutable once built; children are held by pointer so a sub-plan may be shared by
// more than one parent.
type PlanNode interface {
	// Schema is the shape of the rows this node produces.
	Schema() *common.DataSchema
	// Children are the input sub-plans, leaf nodes return nil.
	Children() []PlanNode
	// String is the node's one line summary as printed by Format.
	String() string
}

// EmptyPlan is the conceptual absent input a plan is built over when there is no table
// to scan. It prints as an empty line in formatted plans.
type EmptyPlan struct {
	schema *common.DataSchema
}

func NewEmptyPlan(schema *common.DataSchema) *EmptyPlan {
	return &EmptyPlan{schema: schema}
}

func (p *EmptyPlan) Schema() *common.DataSchema {
	return p.schema
}

func (p *EmptyPlan) Children() []PlanNode {
	return nil
}

func (p *EmptyPlan) String() string {
	return ""
}

// ScanPlan reads a table resolved through the catalog. It is a leaf.
type ScanPlan struct {
	SchemaName string
	TableName  string
	Table      *common.TableInfo
	scanSchema *common.DataSchema
}

func (p *ScanPlan) Schema() *common.DataSchema {
	return p.scanSchema
}

func (p *ScanPlan) Children() []PlanNode {
	return nil
}

func (p *ScanPlan) String() string {
	return fmt.Sprintf("Scan: %s.%s [%s]", p.SchemaName, p.TableName, p.scanSchema)
}

// ProjectionPlan evaluates one expression per output field against its input.
type ProjectionPlan struct {
	Input        PlanNode
	Exprs        []Expression
	OutputSchema *common.DataSchema
}

func (p *ProjectionPlan) Schema() *common.DataSchema {
	return p.OutputSchema
}

func (p *ProjectionPlan) Children() []PlanNode {
	return []PlanNode{p.Input}
}

func (p *ProjectionPlan) String() string {
	return fmt.Sprintf("Projection: %s", p.OutputSchema)
}

// FilterPlan keeps input rows matching its predicate, the schema passes through.
type FilterPlan struct {
	Input     PlanNode
	Predicate Expression
}

func (p *FilterPlan) Schema() *common.DataSchema {
	return p.Input.Schema()
}

func (p *FilterPlan) Children() []PlanNode {
	return []PlanNode{p.Input}
}

func (p *FilterPlan) String() string {
	return fmt.Sprintf("Filter: %s", p.Predicate)
}

// AggregatePlan groups its input and evaluates aggregate expressions per group. The
// output schema is the group-by fields followed by the aggregate fields.
type AggregatePlan struct {
	Input        PlanNode
	GroupBy      []Expression
	Aggr         []Expression
	OutputSchema *common.DataSchema
}

func (p *AggregatePlan) Schema() *common.DataSchema {
	return p.OutputSchema
}

func (p *AggregatePlan) Children() []PlanNode {
	return []PlanNode{p.Input}
}

func (p *AggregatePlan) String() string {
	return fmt.Sprintf("Aggregate: groupBy=[%s], aggr=[%s]", exprList(p.GroupBy), exprList(p.Aggr))
}

// LimitPlan caps the number of rows produced, the schema passes through.
type LimitPlan struct {
	Input PlanNode
	N     int64
}

func (p *LimitPlan) Schema() *common.DataSchema {
	return p.Input.Schema()
}

func (p *LimitPlan) Children() []PlanNode {
	return []PlanNode{p.Input}
}

func (p *LimitPlan) String() string {
	return fmt.Sprintf("Limit: %d", p.N)
}

// SelectPlan marks a finished plan as a top level query result. It adds no operator of
// its own: the schema passes through and Format prints exactly the input's rendering.
type SelectPlan struct {
	Input PlanNode
}

func (p *SelectPlan) Schema() *common.DataSchema {
	return p.Input.Schema()
}

func (p *SelectPlan) Children() []PlanNode {
	return []PlanNode{p.Input}
}

func (p *SelectPlan) String() string {
	return ""
}

func exprList(exprs []Expression) string {
	strs := make([]string, len(exprs))
	for i, expr := range exprs {
		strs[i] = expr.String()
	}
	return strings.Join(strs, ", ")
}
