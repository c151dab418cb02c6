package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer/stateful"

	"github.com/florann/databend/errors"
)

var (
	lex = stateful.MustSimple([]stateful.Rule{
		{`Ident`, "((?i)[a-zA-Z_][a-zA-Z_0-9]*)|`[^`]*`", nil},
		{`Number`, `[-+]?\d*\.?\d+([eE][-+]?\d+)?`, nil},
		{`String`, `'[^']*'|"[^"]*"`, nil},
		{`Punct`, `<>|!=|<=|>=|[-+*/%,.()=<>;]`, nil},
		{`Whitespace`, `\s+`, nil},
	})
	parser = participle.MustBuild(&Statement{},
		participle.Lexer(lex),
		participle.CaseInsensitive("Ident"),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
		participle.Unquote("String"),
	)
)

// Parse an SQL query.
func Parse(sql string) (*Statement, error) {
	stmt := &Statement{}
	if err := parser.ParseString("", sql, stmt); err != nil {
		return nil, errors.MaybeAddStack(err)
	}
	return stmt, nil
}
