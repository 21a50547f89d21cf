package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/structure"
)

// Parse translates a list of mongo-like stage objects, such as
// [{"$match": {...}}, {"$group": {"_id": "$genre", "n": {"$sum": 1}}}], into
// stages. Fields of $project and $group are read in name order. A $sort with
// more than one key must be written as a list of single-key objects to keep
// its order.
func Parse(stages any) ([]domain.Stage, error) {
	seq, _, err := structure.Seq(stages)
	if err != nil {
		return nil, fmt.Errorf("%w: expected a list of stages, got %T", domain.ErrBadQuery, stages)
	}
	var res []domain.Stage
	for raw := range seq {
		n := len(res)
		fields, err := objectFields(raw)
		if err != nil || len(fields) != 1 {
			return nil, domain.ErrInvalidStage{Stage: "<unknown>", Index: n, Reason: "a stage must be an object with a single key"}
		}
		for name, arg := range fields {
			stage, err := parseStage(name, arg)
			if err != nil {
				return nil, domain.ErrInvalidStage{Stage: name, Index: n, Reason: err.Error()}
			}
			res = append(res, stage)
		}
	}
	return res, nil
}

func objectFields(v any) (map[string]any, error) {
	if v == nil {
		return nil, fmt.Errorf("expected an object, got nil")
	}
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	return maps.Collect(seq), nil
}

func parseStage(name string, arg any) (domain.Stage, error) {
	switch name {
	case "$match":
		f, err := matcher.Parse(arg)
		if err != nil {
			return nil, err
		}
		return domain.Match{Filter: f}, nil
	case "$project":
		return parseProject(arg)
	case "$group":
		return parseGroup(arg)
	case "$unwind":
		return parseUnwind(arg)
	case "$sort":
		return parseSort(arg)
	case "$limit":
		n, ok := structure.AsInteger(arg)
		if !ok {
			return nil, fmt.Errorf("expected an integer, got %T", arg)
		}
		return domain.Limit{N: n}, nil
	case "$skip":
		n, ok := structure.AsInteger(arg)
		if !ok {
			return nil, fmt.Errorf("expected an integer, got %T", arg)
		}
		return domain.Skip{N: n}, nil
	default:
		return nil, fmt.Errorf("unknown stage")
	}
}

func parseProject(arg any) (domain.Stage, error) {
	fields, err := objectFields(arg)
	if err != nil {
		return nil, err
	}
	var res domain.Project
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		v := fields[name]
		if name == domain.IDField {
			if n, ok := structure.AsInteger(v); ok && n == 0 || v == false {
				res.ExcludeID = true
				continue
			}
		}
		if n, ok := structure.AsInteger(v); ok && n == 1 || v == true {
			res.Fields = append(res.Fields, domain.NamedExpr{Name: name, Expr: domain.Ref(name)})
			continue
		}
		if n, ok := structure.AsInteger(v); ok && n == 0 || v == false {
			return nil, fmt.Errorf("field %q: excluding fields other than %s is not supported", name, domain.IDField)
		}
		expr, err := parseExpr(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		res.Fields = append(res.Fields, domain.NamedExpr{Name: name, Expr: expr})
	}
	return res, nil
}

func parseGroup(arg any) (domain.Stage, error) {
	fields, err := objectFields(arg)
	if err != nil {
		return nil, err
	}
	rawKey, ok := fields[domain.IDField]
	if !ok {
		return nil, fmt.Errorf("missing %s", domain.IDField)
	}
	key, err := parseExpr(rawKey)
	if err != nil {
		return nil, fmt.Errorf("group key: %w", err)
	}
	res := domain.Group{Key: key}
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if name == domain.IDField {
			continue
		}
		acc, err := objectFields(fields[name])
		if err != nil || len(acc) != 1 {
			return nil, fmt.Errorf("accumulator %q must be an object with a single operator", name)
		}
		for op, v := range acc {
			a := domain.Accumulator{Name: name, Op: domain.AccOp(op)}
			if a.Op != domain.AccCount {
				if a.Expr, err = parseExpr(v); err != nil {
					return nil, fmt.Errorf("accumulator %q: %w", name, err)
				}
			}
			res.Accumulators = append(res.Accumulators, a)
		}
	}
	return res, nil
}

func parseUnwind(arg any) (domain.Stage, error) {
	if path, ok := arg.(string); ok {
		return domain.Unwind{Field: strings.TrimPrefix(path, "$")}, nil
	}
	fields, err := objectFields(arg)
	if err != nil {
		return nil, err
	}
	path, ok := fields["path"].(string)
	if !ok {
		return nil, fmt.Errorf("path must be a string")
	}
	res := domain.Unwind{Field: strings.TrimPrefix(path, "$")}
	for k, v := range fields {
		switch k {
		case "path":
		case "preserveNullAndEmptyArrays":
			if v == true {
				res.Policy = domain.UnwindPreserve
			}
		case "strict":
			if v == true {
				res.Policy = domain.UnwindStrict
			}
		default:
			return nil, fmt.Errorf("unknown option %q", k)
		}
	}
	return res, nil
}

func parseSort(arg any) (domain.Stage, error) {
	var items []any
	if seq, _, err := structure.Seq(arg); err == nil {
		items = slices.Collect(seq)
	} else {
		fields, err := objectFields(arg)
		if err != nil {
			return nil, err
		}
		if len(fields) > 1 {
			return nil, fmt.Errorf("use a list of single-key objects to sort by more than one key")
		}
		items = []any{fields}
	}
	var res domain.SortBy
	for _, item := range items {
		fields, err := objectFields(item)
		if err != nil || len(fields) != 1 {
			return nil, fmt.Errorf("sort keys must be single-key objects")
		}
		for k, v := range fields {
			order, ok := structure.AsInteger(v)
			if !ok {
				return nil, fmt.Errorf("order of %q must be 1 or -1", k)
			}
			res.Keys = append(res.Keys, domain.SortKey{Key: k, Order: order})
		}
	}
	return res, nil
}

// parseExpr reads strings starting with '$' as field references, objects with
// a single operator key as operators and other objects as documents.
func parseExpr(v any) (domain.Expr, error) {
	if s, ok := v.(string); ok {
		if strings.HasPrefix(s, "$") {
			return domain.Ref(s[1:]), nil
		}
		return domain.Lit(s), nil
	}
	if _, isList := v.([]any); isList || (domain.KindOf(v) != domain.KindDocument && !isMap(v)) {
		return domain.Lit(v), nil
	}
	fields, err := objectFields(v)
	if err != nil {
		return nil, err
	}
	if len(fields) == 1 {
		for op, arg := range fields {
			if strings.HasPrefix(op, "$") {
				return parseOperatorExpr(op, arg)
			}
		}
	}
	var res domain.Object
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		expr, err := parseExpr(fields[name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		res.Fields = append(res.Fields, domain.NamedExpr{Name: name, Expr: expr})
	}
	return res, nil
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func parseOperatorExpr(op string, arg any) (domain.Expr, error) {
	if op == "$literal" {
		return domain.Lit(arg), nil
	}
	seq, _, err := structure.Seq(arg)
	if err != nil {
		return nil, fmt.Errorf("%s needs a list of arguments", op)
	}
	args := make([]domain.Expr, 0)
	for item := range seq {
		expr, err := parseExpr(item)
		if err != nil {
			return nil, err
		}
		args = append(args, expr)
	}
	switch op {
	case "$add":
		return domain.Add{Args: args}, nil
	case "$multiply":
		return domain.Multiply{Args: args}, nil
	case "$subtract", "$divide", "$mod":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s needs exactly 2 arguments", op)
		}
		switch op {
		case "$subtract":
			return domain.Subtract{A: args[0], B: args[1]}, nil
		case "$divide":
			return domain.Divide{A: args[0], B: args[1]}, nil
		default:
			return domain.Mod{A: args[0], B: args[1]}, nil
		}
	default:
		return nil, domain.ErrUnknownOperator{Operator: op}
	}
}
