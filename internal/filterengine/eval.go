package filterengine

import (
	"fmt"
	"math"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// Limits bounds evaluation cost (spec.md §4.7): the engine is pure and must
// reject pathological expressions rather than run unbounded.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// evalCtx threads the current pipe value, caller parameters, and the
// shared cost counters through a single evaluation.
type evalCtx struct {
	input  Value
	params map[string]Value
	limits Limits
	depth  int
	nodes  *int
}

func (c evalCtx) withInput(v Value) evalCtx {
	c.input = v
	return c
}

func (c evalCtx) child() (evalCtx, error) {
	c.depth++
	if c.limits.MaxDepth > 0 && c.depth > c.limits.MaxDepth {
		return c, envelope.New(envelope.FilterFailed, "filter expression exceeds maximum nesting depth")
	}
	return c, nil
}

func (c evalCtx) countNode() error {
	*c.nodes++
	if c.limits.MaxNodes > 0 && *c.nodes > c.limits.MaxNodes {
		return envelope.New(envelope.FilterFailed, "filter expression exceeds maximum node count")
	}
	return nil
}

// Eval evaluates an AST against input with the given caller parameters and
// cost limits.
func Eval(n Node, input Value, params map[string]Value, limits Limits) (Value, error) {
	nodes := 0
	ctx := evalCtx{input: input, params: params, limits: limits, nodes: &nodes}
	return eval(n, ctx)
}

func eval(n Node, ctx evalCtx) (Value, error) {
	if err := ctx.countNode(); err != nil {
		return nil, err
	}
	child, err := ctx.child()
	if err != nil {
		return nil, err
	}

	switch v := n.(type) {
	case Identity:
		return ctx.input, nil

	case Literal:
		return v.Value, nil

	case Accessor:
		base, err := eval(v.Base, child)
		if err != nil {
			return nil, err
		}
		result, _ := getPath(base, v.Path)
		return result, nil

	case Pipe:
		left, err := eval(v.Left, child)
		if err != nil {
			return nil, err
		}
		return eval(v.Right, child.withInput(left))

	case Unary:
		return evalUnary(v, child)

	case Binary:
		return evalBinary(v, child)

	case ArrayLit:
		out := make([]interface{}, len(v.Elements))
		for i, e := range v.Elements {
			val, err := eval(e, child)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case ObjectLit:
		out := make(map[string]interface{}, len(v.Keys))
		for i, k := range v.Keys {
			val, err := eval(v.Values[i], child)
			if err != nil {
				return nil, err
			}
			out[k] = val
		}
		return out, nil

	case Call:
		return evalCall(v, child)

	default:
		return nil, fmt.Errorf("filterengine: unknown node type %T", n)
	}
}

func evalUnary(u Unary, ctx evalCtx) (Value, error) {
	operand, err := eval(u.Operand, ctx)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case "not":
		return !truthy(operand), nil
	case "-":
		n, err := toNumber(operand)
		if err != nil {
			return nil, envelope.Wrap(envelope.FilterFailed, "unary minus on non-number", err)
		}
		return -n, nil
	default:
		return nil, fmt.Errorf("filterengine: unknown unary operator %q", u.Op)
	}
}

func evalBinary(b Binary, ctx evalCtx) (Value, error) {
	switch b.Op {
	case "and":
		left, err := eval(b.Left, ctx)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return false, nil
		}
		right, err := eval(b.Right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case "or":
		left, err := eval(b.Left, ctx)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return true, nil
		}
		right, err := eval(b.Right, ctx)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}

	left, err := eval(b.Left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := eval(b.Right, ctx)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case "==":
		return deepEqual(left, right), nil
	case "!=":
		return !deepEqual(left, right), nil
	case ">":
		return lessThan(right, left), nil
	case ">=":
		return typeClass(left) == typeClass(right) && !lessThan(left, right), nil
	case "<":
		return lessThan(left, right), nil
	case "<=":
		return typeClass(left) == typeClass(right) && !lessThan(right, left), nil
	case "in":
		return valueIn(left, right), nil
	case "not in":
		return !valueIn(left, right), nil
	case "+", "-", "*", "/", "%", "^":
		return arithmetic(b.Op, left, right)
	default:
		return nil, fmt.Errorf("filterengine: unknown binary operator %q", b.Op)
	}
}

func valueIn(needle, haystack Value) bool {
	switch h := haystack.(type) {
	case []interface{}:
		for _, item := range h {
			if deepEqual(needle, item) {
				return true
			}
		}
		return false
	case map[string]interface{}:
		key := toStringValue(needle)
		_, ok := h[key]
		return ok
	case string:
		s := toStringValue(needle)
		return len(s) > 0 && contains(h, s)
	default:
		return false
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func arithmetic(op string, a, b Value) (Value, error) {
	if op == "+" {
		if as, ok := a.(string); ok {
			return as + toStringValue(b), nil
		}
	}
	an, err := toNumber(a)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "arithmetic on non-number operand", err)
	}
	bn, err := toNumber(b)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "arithmetic on non-number operand", err)
	}
	switch op {
	case "+":
		return an + bn, nil
	case "-":
		return an - bn, nil
	case "*":
		return an * bn, nil
	case "/":
		if bn == 0 {
			return nil, envelope.New(envelope.FilterFailed, "division by zero")
		}
		return an / bn, nil
	case "%":
		if bn == 0 {
			return nil, envelope.New(envelope.FilterFailed, "modulo by zero")
		}
		return math.Mod(an, bn), nil
	case "^":
		return math.Pow(an, bn), nil
	default:
		return nil, fmt.Errorf("filterengine: unknown arithmetic operator %q", op)
	}
}
