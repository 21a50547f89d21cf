package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/structure"
)

// evalFunc evaluates an expression against a document. Values read from the
// document are not copied.
type evalFunc func(domain.Document) (value any, defined bool, err error)

func (p *Pipeline) compileExpr(e domain.Expr) (evalFunc, error) {
	switch t := e.(type) {
	case nil:
		return nil, fmt.Errorf("missing expression")
	case domain.FieldRef:
		return p.fieldRef(t)
	case domain.Literal:
		if domain.KindOf(t.Value) == domain.KindOther {
			return nil, fmt.Errorf("unsupported literal of type %T", t.Value)
		}
		return func(domain.Document) (any, bool, error) { return t.Value, true, nil }, nil
	case domain.Object:
		return p.object(t)
	case domain.Add:
		return p.variadic(t.ExprOp(), t.Args, add)
	case domain.Multiply:
		return p.variadic(t.ExprOp(), t.Args, multiply)
	case domain.Subtract:
		return p.binary(t.ExprOp(), t.A, t.B, subtract)
	case domain.Divide:
		return p.binary(t.ExprOp(), t.A, t.B, divide)
	case domain.Mod:
		return p.binary(t.ExprOp(), t.A, t.B, mod)
	default:
		return nil, fmt.Errorf("unknown expression %q", e.ExprOp())
	}
}

// fieldRef reads a path. Paths crossing arrays evaluate to the list of values
// found in the elements.
func (p *Pipeline) fieldRef(f domain.FieldRef) (evalFunc, error) {
	path := strings.TrimPrefix(f.Path, "$")
	if path == "" {
		return nil, fmt.Errorf("empty field path")
	}
	addr, err := p.fn.GetAddress(path)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (any, bool, error) {
		fields, expanded, err := p.fn.GetField(doc, addr...)
		if err != nil {
			return nil, false, err
		}
		if !expanded {
			value, defined := fields[0].Get()
			return value, defined, nil
		}
		res := make([]any, 0, len(fields))
		for _, field := range fields {
			if value, defined := field.Get(); defined {
				res = append(res, value)
			}
		}
		return res, true, nil
	}, nil
}

func checkName(name string, seen map[string]bool) error {
	switch {
	case name == "":
		return fmt.Errorf("empty field name")
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("field name %q cannot start with '$'", name)
	case seen[name]:
		return fmt.Errorf("duplicate field %q", name)
	}
	seen[name] = true
	return nil
}

func (p *Pipeline) object(o domain.Object) (evalFunc, error) {
	type field struct {
		name string
		eval evalFunc
	}
	seen := make(map[string]bool, len(o.Fields))
	fields := make([]field, len(o.Fields))
	for n, f := range o.Fields {
		if err := checkName(f.Name, seen); err != nil {
			return nil, err
		}
		if strings.Contains(f.Name, ".") {
			return nil, fmt.Errorf("field name %q cannot contain '.'", f.Name)
		}
		eval, err := p.compileExpr(f.Expr)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields[n] = field{name: f.Name, eval: eval}
	}
	return func(doc domain.Document) (any, bool, error) {
		res, err := p.docFac(nil)
		if err != nil {
			return nil, false, err
		}
		for _, f := range fields {
			value, defined, err := f.eval(doc)
			if err != nil {
				return nil, false, err
			}
			if defined {
				res.Set(f.name, data.Clone(value))
			}
		}
		return res, true, nil
	}, nil
}

type arithFunc func(op string, a, b any) (any, error)

// operands evaluates the arguments of an arithmetic expression. It returns
// false when any of them is null or undefined.
func operands(op string, doc domain.Document, args []evalFunc) ([]any, bool, error) {
	res := make([]any, len(args))
	for n, arg := range args {
		value, defined, err := arg(doc)
		if err != nil {
			return nil, false, err
		}
		if !defined || value == nil {
			return nil, false, nil
		}
		if kind := domain.KindOf(value); kind != domain.KindNumber {
			return nil, false, domain.ErrArithmetic{Op: op, Actual: kind}
		}
		res[n] = value
	}
	return res, true, nil
}

func (p *Pipeline) compileArgs(op string, exprs []domain.Expr) ([]evalFunc, error) {
	res := make([]evalFunc, len(exprs))
	for n, e := range exprs {
		eval, err := p.compileExpr(e)
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", op, n, err)
		}
		res[n] = eval
	}
	return res, nil
}

func (p *Pipeline) variadic(op string, exprs []domain.Expr, fn arithFunc) (evalFunc, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%s needs at least one argument", op)
	}
	args, err := p.compileArgs(op, exprs)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (any, bool, error) {
		values, ok, err := operands(op, doc, args)
		if err != nil || !ok {
			return nil, err == nil, err
		}
		res := values[0]
		for _, v := range values[1:] {
			if res, err = fn(op, res, v); err != nil {
				return nil, false, err
			}
		}
		return res, true, nil
	}, nil
}

func (p *Pipeline) binary(op string, a, b domain.Expr, fn arithFunc) (evalFunc, error) {
	args, err := p.compileArgs(op, []domain.Expr{a, b})
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (any, bool, error) {
		values, ok, err := operands(op, doc, args)
		if err != nil || !ok {
			return nil, err == nil, err
		}
		res, err := fn(op, values[0], values[1])
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	}, nil
}

// integers returns both values as int when neither is a float.
func integers(a, b any) (int, int, bool) {
	if isFloat(a) || isFloat(b) {
		return 0, 0, false
	}
	ia, okA := structure.AsInteger(a)
	ib, okB := structure.AsInteger(b)
	return ia, ib, okA && okB
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

func floats(a, b any) (float64, float64) {
	fa, _ := data.AsFloat(a)
	fb, _ := data.AsFloat(b)
	return fa, fb
}

func add(_ string, a, b any) (any, error) {
	if ia, ib, ok := integers(a, b); ok {
		return ia + ib, nil
	}
	fa, fb := floats(a, b)
	return fa + fb, nil
}

func subtract(_ string, a, b any) (any, error) {
	if ia, ib, ok := integers(a, b); ok {
		return ia - ib, nil
	}
	fa, fb := floats(a, b)
	return fa - fb, nil
}

func multiply(_ string, a, b any) (any, error) {
	if ia, ib, ok := integers(a, b); ok {
		return ia * ib, nil
	}
	fa, fb := floats(a, b)
	return fa * fb, nil
}

func divide(op string, a, b any) (any, error) {
	fa, fb := floats(a, b)
	if fb == 0 {
		return nil, fmt.Errorf("%w: %s by zero", domain.ErrBadQuery, op)
	}
	return fa / fb, nil
}

func mod(op string, a, b any) (any, error) {
	if ia, ib, ok := integers(a, b); ok {
		if ib == 0 {
			return nil, fmt.Errorf("%w: %s by zero", domain.ErrBadQuery, op)
		}
		return ia % ib, nil
	}
	fa, fb := floats(a, b)
	if fb == 0 {
		return nil, fmt.Errorf("%w: %s by zero", domain.ErrBadQuery, op)
	}
	return math.Mod(fa, fb), nil
}
