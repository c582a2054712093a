// Package cql parses the component query language into signature filters.
//
// Grammar:
//
//	term     = factor { ("&" | "|") factor }
//	factor   = "ALL" "(" ")" | "EXACT" "(" names ")" | "CONTAINS" "(" names ")" | "!" factor | "(" term ")"
//	names    = ident { "," ident }
//
// Operators are evaluated left to right without precedence, so "A | B & C" is "(A | B) & C".
package cql

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/argus-labs/ecstore/pkg/ecs/filter"
	"github.com/rotisserie/eris"
)

// Resolver maps a component or tag name to its signature member.
type Resolver func(name string) (filter.Member, error)

type operator int

const (
	opAnd operator = iota
	opOr
)

// Capture converts the parsed operator token.
func (o *operator) Capture(s []string) error {
	if len(s) == 0 {
		return eris.New("missing operator")
	}
	switch s[0] {
	case "&":
		*o = opAnd
	case "|":
		*o = opOr
	default:
		return eris.Errorf("invalid operator %q", s[0])
	}
	return nil
}

func (o operator) String() string {
	if o == opOr {
		return "|"
	}
	return "&"
}

type name struct {
	Value string `@Ident`
}

type all struct {
	Keyword string `@"ALL" "(" ")"`
}

type exact struct {
	Names []*name `"EXACT" "(" @@ ("," @@)* ")"`
}

type contains struct {
	Names []*name `"CONTAINS" "(" @@ ("," @@)* ")"`
}

type negation struct {
	Value *value `"!" @@`
}

type value struct {
	All      *all      `  @@`
	Exact    *exact    `| @@`
	Contains *contains `| @@`
	Not      *negation `| @@`
	Group    *term     `| "(" @@ ")"`
}

type opValue struct {
	Operator operator `@("&" | "|")`
	Value    *value   `@@`
}

type term struct {
	Left  *value     `@@`
	Right []*opValue `@@*`
}

var parser = participle.MustBuild[term]()

// Parse parses text and resolves every name through resolve.
func Parse(text string, resolve Resolver) (filter.ComponentFilter, error) {
	ast, err := parser.ParseString("", text)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse query %q", text)
	}
	return ast.toFilter(resolve)
}

// Format parses text and prints it back in canonical form.
func Format(text string) (string, error) {
	ast, err := parser.ParseString("", text)
	if err != nil {
		return "", eris.Wrapf(err, "failed to parse query %q", text)
	}
	var sb strings.Builder
	ast.format(&sb)
	return sb.String(), nil
}

func (t *term) toFilter(resolve Resolver) (filter.ComponentFilter, error) {
	acc, err := t.Left.toFilter(resolve)
	if err != nil {
		return nil, err
	}
	for _, right := range t.Right {
		f, err := right.Value.toFilter(resolve)
		if err != nil {
			return nil, err
		}
		switch right.Operator {
		case opAnd:
			acc = filter.And(acc, f)
		case opOr:
			acc = filter.Or(acc, f)
		default:
			return nil, eris.New("invalid operator")
		}
	}
	return acc, nil
}

func (v *value) toFilter(resolve Resolver) (filter.ComponentFilter, error) {
	switch {
	case v.All != nil:
		return filter.All(), nil
	case v.Exact != nil:
		members, err := resolveNames(v.Exact.Names, resolve)
		if err != nil {
			return nil, err
		}
		return filter.Exact(members...), nil
	case v.Contains != nil:
		members, err := resolveNames(v.Contains.Names, resolve)
		if err != nil {
			return nil, err
		}
		return filter.Contains(members...), nil
	case v.Not != nil:
		inner, err := v.Not.Value.toFilter(resolve)
		if err != nil {
			return nil, err
		}
		return filter.Not(inner), nil
	case v.Group != nil:
		return v.Group.toFilter(resolve)
	default:
		return nil, eris.New("empty query expression")
	}
}

func resolveNames(names []*name, resolve Resolver) ([]filter.Member, error) {
	members := make([]filter.Member, 0, len(names))
	for _, n := range names {
		m, err := resolve(n.Value)
		if err != nil {
			return nil, eris.Wrapf(err, "unknown name %q", n.Value)
		}
		members = append(members, m)
	}
	return members, nil
}

func (t *term) format(sb *strings.Builder) {
	t.Left.format(sb)
	for _, right := range t.Right {
		sb.WriteString(" ")
		sb.WriteString(right.Operator.String())
		sb.WriteString(" ")
		right.Value.format(sb)
	}
}

func (v *value) format(sb *strings.Builder) {
	switch {
	case v.All != nil:
		sb.WriteString("ALL()")
	case v.Exact != nil:
		formatCall(sb, "EXACT", v.Exact.Names)
	case v.Contains != nil:
		formatCall(sb, "CONTAINS", v.Contains.Names)
	case v.Not != nil:
		sb.WriteString("!")
		v.Not.Value.format(sb)
	case v.Group != nil:
		sb.WriteString("(")
		v.Group.format(sb)
		sb.WriteString(")")
	}
}

func formatCall(sb *strings.Builder, keyword string, names []*name) {
	sb.WriteString(keyword)
	sb.WriteString("(")
	for i, n := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n.Value)
	}
	sb.WriteString(")")
}
