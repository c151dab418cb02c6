package planner

import (
	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/execctx"
	"github.com/florann/databend/users"
)

// PlanBuilder assembles a plan tree bottom-up. It has value semantics: every step
// consumes the builder and returns a new one, so a builder can never be mutated from
// two goroutines, and a failed step aborts the whole build with no partial tree
// escaping.
type PlanBuilder struct {
	ctx    *execctx.QueryContext
	schema *common.DataSchema
	plan   PlanNode
}

// Create starts a build from a base schema. The plan sits on an EmptyPlan input until
// a Scan replaces it.
func Create(ctx *execctx.QueryContext, schema *common.DataSchema) PlanBuilder {
	return PlanBuilder{ctx: ctx, schema: schema, plan: NewEmptyPlan(schema)}
}

// Scan resolves a table through the context's catalog and makes it the plan's input.
// The session's current user must hold the Select privilege on the table.
func (b PlanBuilder) Scan(schemaName string, tableName string) (PlanBuilder, error) {
	if _, ok := b.plan.(*EmptyPlan); !ok {
		return PlanBuilder{}, errors.Errorf("scan must be the first step of a plan")
	}
	table, err := b.ctx.GetCatalog().GetTable(schemaName, tableName)
	if err != nil {
		return PlanBuilder{}, err
	}
	user, err := b.ctx.GetCurrentUser()
	if err != nil {
		return PlanBuilder{}, err
	}
	obj := users.TableObject(schemaName, tableName)
	if err := b.ctx.GetUserDirectory().CheckPrivilege(user, obj, users.PrivilegeSelect); err != nil {
		return PlanBuilder{}, err
	}
	schema := table.Schema()
	plan := &ScanPlan{SchemaName: schemaName, TableName: tableName, Table: table, scanSchema: schema}
	return PlanBuilder{ctx: b.ctx, schema: schema, plan: plan}, nil
}

// Project validates every expression against the current schema and wraps the plan in
// a ProjectionPlan whose output schema preserves the requested order.
func (b PlanBuilder) Project(exprs []Expression) (PlanBuilder, error) {
	if len(exprs) == 0 {
		return PlanBuilder{}, errors.Errorf("projection requires at least one expression")
	}
	fields := make([]common.DataField, len(exprs))
	for i, expr := range exprs {
		field, err := expr.ToField(b.schema)
		if err != nil {
			return PlanBuilder{}, err
		}
		fields[i] = field
	}
	schema := common.NewDataSchema(fields)
	plan := &ProjectionPlan{Input: b.plan, Exprs: exprs, OutputSchema: schema}
	return PlanBuilder{ctx: b.ctx, schema: schema, plan: plan}, nil
}

// Filter wraps the plan in a FilterPlan, the schema is unchanged.
func (b PlanBuilder) Filter(predicate Expression) (PlanBuilder, error) {
	if _, err := predicate.ToField(b.schema); err != nil {
		return PlanBuilder{}, err
	}
	plan := &FilterPlan{Input: b.plan, Predicate: predicate}
	return PlanBuilder{ctx: b.ctx, schema: b.schema, plan: plan}, nil
}

// Aggregate wraps the plan in an AggregatePlan grouping by groupBy and computing aggr.
// The output schema is the group-by fields followed by the aggregate fields. Group keys
// without aggregates are allowed, that is a plain distinct.
func (b PlanBuilder) Aggregate(groupBy []Expression, aggr []Expression) (PlanBuilder, error) {
	if len(groupBy)+len(aggr) == 0 {
		return PlanBuilder{}, errors.Errorf("aggregation requires at least one expression")
	}
	fields := make([]common.DataField, 0, len(groupBy)+len(aggr))
	for _, expr := range groupBy {
		if IsAggregate(expr) {
			return PlanBuilder{}, errors.Errorf("group by expression %s must not be an aggregate", expr)
		}
		field, err := expr.ToField(b.schema)
		if err != nil {
			return PlanBuilder{}, err
		}
		fields = append(fields, field)
	}
	for _, expr := range aggr {
		if !IsAggregate(expr) {
			return PlanBuilder{}, errors.Errorf("aggregate expression %s is not an aggregate function", expr)
		}
		field, err := expr.ToField(b.schema)
		if err != nil {
			return PlanBuilder{}, err
		}
		fields = append(fields, field)
	}
	schema := common.NewDataSchema(fields)
	plan := &AggregatePlan{Input: b.plan, GroupBy: groupBy, Aggr: aggr, OutputSchema: schema}
	return PlanBuilder{ctx: b.ctx, schema: schema, plan: plan}, nil
}

// Limit wraps the plan in a LimitPlan, the schema is unchanged.
func (b PlanBuilder) Limit(n int64) (PlanBuilder, error) {
	if n < 0 {
		return PlanBuilder{}, errors.Errorf("limit must be >= 0 but was %d", n)
	}
	plan := &LimitPlan{Input: b.plan, N: n}
	return PlanBuilder{ctx: b.ctx, schema: b.schema, plan: plan}, nil
}

// Build finalizes the plan tree.
func (b PlanBuilder) Build() (PlanNode, error) {
	if b.plan == nil {
		return nil, errors.Errorf("plan builder was not created with Create")
	}
	return b.plan, nil
}

// WrapInSelect marks a built plan as a top level query result. The schema is untouched
// and the formatted output is exactly the input's.
func WrapInSelect(plan PlanNode) *SelectPlan {
	return &SelectPlan{Input: plan}
}
