package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

type operator int

const (
	opGT operator = iota
	opGE
	opLT
	opLE
	opEQ
	opNE
	opContains
)

var operators = map[string]operator{
	">":        opGT,
	">=":       opGE,
	"<":        opLT,
	"<=":       opLE,
	"==":       opEQ,
	"!=":       opNE,
	"contains": opContains,
}

// condition is one typed comparison. All conditions of a predicate must hold.
type condition struct {
	field string
	spec  fieldSpec
	op    operator
	num   float64
	str   string
}

// Predicate is a parsed rule expression: a conjunction of conditions.
type Predicate struct {
	conds []condition
}

// Eval reports whether the row satisfies every condition. A condition on an
// unavailable field (channel metadata on a never-enriched row) is false, so
// such rows are never excluded by metadata rules.
func (p *Predicate) Eval(row model.JoinedRow) bool {
	for _, c := range p.conds {
		if !c.eval(row) {
			return false
		}
	}
	return len(p.conds) > 0
}

func (c condition) eval(row model.JoinedRow) bool {
	if c.spec.kind == kindNumber {
		v, ok := c.spec.num(row)
		if !ok {
			return false
		}
		switch c.op {
		case opGT:
			return v > c.num
		case opGE:
			return v >= c.num
		case opLT:
			return v < c.num
		case opLE:
			return v <= c.num
		case opEQ:
			return v == c.num
		case opNE:
			return v != c.num
		default:
			return false
		}
	}

	v, ok := c.spec.str(row)
	if !ok {
		return false
	}
	switch c.op {
	case opEQ:
		return strings.EqualFold(v, c.str)
	case opNE:
		return !strings.EqualFold(v, c.str)
	case opContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.str))
	default:
		return false
	}
}

// Parse compiles a rule expression. Grammar:
//
//	expr := cond ("AND" cond)*
//	cond := field op literal
//
// where op is one of > >= < <= == != contains. An unknown field, a malformed
// literal, or a type-mismatched operator is a parse error; the caller skips
// and reports the rule rather than aborting the stage.
func Parse(expression string) (*Predicate, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRule, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty expression", common.ErrInvalidRule)
	}

	var conds []condition
	i := 0
	for {
		if i+3 > len(tokens) {
			return nil, fmt.Errorf("%w: incomplete condition near %q", common.ErrInvalidRule, strings.Join(tokens[i:], " "))
		}

		cond, err := parseCondition(tokens[i], tokens[i+1], tokens[i+2])
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
		i += 3

		if i == len(tokens) {
			break
		}
		if !strings.EqualFold(tokens[i], "AND") {
			return nil, fmt.Errorf("%w: expected AND, got %q", common.ErrInvalidRule, tokens[i])
		}
		i++
	}

	return &Predicate{conds: conds}, nil
}

func parseCondition(fieldTok, opTok, valueTok string) (condition, error) {
	spec, ok := fields[strings.ToLower(fieldTok)]
	if !ok {
		return condition{}, fmt.Errorf("%w: unknown field %q", common.ErrInvalidRule, fieldTok)
	}

	op, ok := operators[strings.ToLower(opTok)]
	if !ok {
		return condition{}, fmt.Errorf("%w: unknown operator %q", common.ErrInvalidRule, opTok)
	}

	cond := condition{field: strings.ToLower(fieldTok), spec: spec, op: op}

	if spec.kind == kindNumber {
		if op == opContains {
			return condition{}, fmt.Errorf("%w: operator contains requires a string field, %q is numeric", common.ErrInvalidRule, fieldTok)
		}
		v, err := strconv.ParseFloat(valueTok, 64)
		if err != nil {
			return condition{}, fmt.Errorf("%w: field %q needs a numeric literal, got %q", common.ErrInvalidRule, fieldTok, valueTok)
		}
		cond.num = v
		return cond, nil
	}

	switch op {
	case opEQ, opNE, opContains:
	default:
		return condition{}, fmt.Errorf("%w: operator %q is not valid for string field %q", common.ErrInvalidRule, opTok, fieldTok)
	}
	cond.str = valueTok
	return cond, nil
}

// tokenize splits an expression on whitespace, keeping single- or
// double-quoted strings as one token with the quotes removed.
func tokenize(expression string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range expression {
		switch {
		case quote != 0:
			if r == quote {
				tokens = append(tokens, current.String())
				current.Reset()
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			flush()
			quote = r
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return tokens, nil
}
