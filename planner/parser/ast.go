// Package parser contains the SQL query parser.
//
//nolint:govet
package parser

import (
	"strconv"
	"strings"

	"github.com/florann/databend/common"
	"github.com/florann/databend/errors"
	"github.com/florann/databend/execctx"
	"github.com/florann/databend/planner"
)

// Statement is one parsed query, optionally prefixed with EXPLAIN.
type Statement struct {
	Explain bool    `@"EXPLAIN"?`
	Select  *Select `@@ ";"?`
}

// Select statement.
type Select struct {
	Exprs   []*SelectExpr `"SELECT" @@ ("," @@)*`
	From    *TableRef     `("FROM" @@)?`
	Where   *Expr         `("WHERE" @@)?`
	GroupBy []*Expr       `("GROUP" "BY" @@ ("," @@)*)?`
	Limit   *int64        `("LIMIT" @Number)?`
}

// TableRef is a schema qualified table name.
type TableRef struct {
	Schema string `@Ident "."`
	Table  string `@Ident`
}

// SelectExpr is one item of the select list, optionally aliased.
type SelectExpr struct {
	Expr *Expr  `@@`
	As   string `("AS" @Ident)?`
}

func (s *SelectExpr) ToExpression() (planner.Expression, error) {
	expr, err := s.Expr.ToExpression()
	if err != nil {
		return nil, err
	}
	if s.As != "" {
		return planner.Alias(expr, s.As), nil
	}
	return expr, nil
}

// Expr is a boolean combination of comparisons, the lowest precedence level.
type Expr struct {
	Left *Comparison `@@`
	Rest []*BoolTerm `@@*`
}

type BoolTerm struct {
	Op    string      `@("AND" | "OR")`
	Right *Comparison `@@`
}

type Comparison struct {
	Left  *Additive      `@@`
	Right *ComparisonRHS `@@?`
}

type ComparisonRHS struct {
	Op    string    `@("<>" | "<=" | ">=" | "!=" | "=" | "<" | ">")`
	Right *Additive `@@`
}

type Additive struct {
	Left *Multiplicative `@@`
	Rest []*AddTerm      `@@*`
}

type AddTerm struct {
	Op    string          `@("+" | "-")`
	Right *Multiplicative `@@`
}

type Multiplicative struct {
	Left *Primary   `@@`
	Rest []*MulTerm `@@*`
}

type MulTerm struct {
	Op    string   `@("*" | "/" | "%")`
	Right *Primary `@@`
}

// Primary is a function call, a literal, a column reference or a parenthesised
// expression. A function call is an Ident directly followed by an opening paren, the
// parser's lookahead of two is what disambiguates it from a plain column.
type Primary struct {
	Func   *FuncCall `  @@`
	Number *string   `| @Number`
	Str    *string   `| @String`
	Column string    `| @Ident`
	Paren  *Expr     `| "(" @@ ")"`
}

type FuncCall struct {
	Name string  `@Ident "("`
	Args []*Expr `(@@ ("," @@)*)? ")"`
}

func (e *Expr) ToExpression() (planner.Expression, error) {
	expr, err := e.Left.ToExpression()
	if err != nil {
		return nil, err
	}
	for _, term := range e.Rest {
		right, err := term.Right.ToExpression()
		if err != nil {
			return nil, err
		}
		expr = planner.Binary(strings.ToLower(term.Op), expr, right)
	}
	return expr, nil
}

func (c *Comparison) ToExpression() (planner.Expression, error) {
	left, err := c.Left.ToExpression()
	if err != nil {
		return nil, err
	}
	if c.Right == nil {
		return left, nil
	}
	right, err := c.Right.Right.ToExpression()
	if err != nil {
		return nil, err
	}
	return planner.Binary(c.Right.Op, left, right), nil
}

func (a *Additive) ToExpression() (planner.Expression, error) {
	expr, err := a.Left.ToExpression()
	if err != nil {
		return nil, err
	}
	for _, term := range a.Rest {
		right, err := term.Right.ToExpression()
		if err != nil {
			return nil, err
		}
		expr = planner.Binary(term.Op, expr, right)
	}
	return expr, nil
}

func (m *Multiplicative) ToExpression() (planner.Expression, error) {
	expr, err := m.Left.ToExpression()
	if err != nil {
		return nil, err
	}
	for _, term := range m.Rest {
		right, err := term.Right.ToExpression()
		if err != nil {
			return nil, err
		}
		expr = planner.Binary(term.Op, expr, right)
	}
	return expr, nil
}

func (p *Primary) ToExpression() (planner.Expression, error) {
	switch {
	case p.Func != nil:
		return p.Func.ToExpression()
	case p.Number != nil:
		return numberLiteral(*p.Number)
	case p.Str != nil:
		return planner.Lit(*p.Str), nil
	case p.Paren != nil:
		return p.Paren.ToExpression()
	default:
		return planner.Field(p.Column), nil
	}
}

func (f *FuncCall) ToExpression() (planner.Expression, error) {
	args := make([]planner.Expression, len(f.Args))
	for i, arg := range f.Args {
		expr, err := arg.ToExpression()
		if err != nil {
			return nil, err
		}
		args[i] = expr
	}
	return planner.Fn(strings.ToLower(f.Name), args...), nil
}

// Integral literals become Int64, everything else Float64.
func numberLiteral(text string) (planner.Expression, error) {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return planner.Lit(i), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, errors.Errorf("invalid number literal %s", text)
	}
	return planner.Lit(f), nil
}

// ToPlan assembles the plan for the statement through the query context's catalog,
// checking table privileges against the session's current user.
func (s *Statement) ToPlan(ctx *execctx.QueryContext) (planner.PlanNode, error) {
	return s.Select.ToPlan(ctx)
}

func (s *Select) ToPlan(ctx *execctx.QueryContext) (planner.PlanNode, error) {
	builder := planner.Create(ctx, common.NewDataSchema(nil))
	var err error
	if s.From != nil {
		builder, err = builder.Scan(s.From.Schema, s.From.Table)
		if err != nil {
			return nil, err
		}
	}
	if s.Where != nil {
		predicate, perr := s.Where.ToExpression()
		if perr != nil {
			return nil, perr
		}
		builder, err = builder.Filter(predicate)
		if err != nil {
			return nil, err
		}
	}
	exprs := make([]planner.Expression, len(s.Exprs))
	for i, selectExpr := range s.Exprs {
		expr, serr := selectExpr.ToExpression()
		if serr != nil {
			return nil, serr
		}
		exprs[i] = expr
	}
	groupBy := make([]planner.Expression, len(s.GroupBy))
	for i, groupExpr := range s.GroupBy {
		expr, gerr := groupExpr.ToExpression()
		if gerr != nil {
			return nil, gerr
		}
		groupBy[i] = expr
	}
	if hasAggregates(exprs) || len(groupBy) > 0 {
		builder, err = buildAggregate(builder, exprs, groupBy)
	} else {
		builder, err = builder.Project(exprs)
	}
	if err != nil {
		return nil, err
	}
	if s.Limit != nil {
		builder, err = builder.Limit(*s.Limit)
		if err != nil {
			return nil, err
		}
	}
	plan, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return planner.WrapInSelect(plan), nil
}

func hasAggregates(exprs []planner.Expression) bool {
	for _, expr := range exprs {
		if planner.IsAggregate(expr) {
			return true
		}
	}
	return false
}

// buildAggregate splits the select list into group keys and aggregates. Every plain
// column in the select list must also appear in the GROUP BY clause.
func buildAggregate(builder planner.PlanBuilder, exprs []planner.Expression, groupBy []planner.Expression) (planner.PlanBuilder, error) {
	grouped := make(map[string]bool, len(groupBy))
	for _, expr := range groupBy {
		grouped[expr.String()] = true
	}
	var aggr []planner.Expression
	for _, expr := range exprs {
		if planner.IsAggregate(expr) {
			aggr = append(aggr, expr)
			continue
		}
		name := expr.String()
		if alias, ok := expr.(*planner.AliasExpr); ok {
			name = alias.Expr.String()
		}
		if !grouped[name] {
			return planner.PlanBuilder{}, errors.Errorf("%s must appear in the GROUP BY clause or be used in an aggregate function", expr)
		}
	}
	return builder.Aggregate(groupBy, aggr)
}
