package matcher

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/structure"
)

// Parse translates a mongo-like query object, such as
// {"genre": "Fantasy", "rating": {"$gte": 4.5}}, into a filter tree. Keys are
// read in name order and joined with [domain.And]. A nil query matches every
// document.
func Parse(query any) (domain.Filter, error) {
	if query == nil {
		return domain.MatchAll{}, nil
	}
	return parseQuery(query)
}

func parseQuery(query any) (domain.Filter, error) {
	fields, err := objectFields(query)
	if err != nil {
		return nil, err
	}
	filters := make([]domain.Filter, 0, len(fields))
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		var f domain.Filter
		if strings.HasPrefix(key, "$") {
			f, err = parseLogical(key, fields[key])
		} else {
			f, err = parseField(key, fields[key])
		}
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return joinAnd(filters), nil
}

func joinAnd(filters []domain.Filter) domain.Filter {
	switch len(filters) {
	case 0:
		return domain.MatchAll{}
	case 1:
		return filters[0]
	default:
		return domain.And{Filters: filters}
	}
}

func objectFields(v any) (map[string]any, error) {
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return nil, fmt.Errorf("%w: expected an object, got %T", domain.ErrBadQuery, v)
	}
	return maps.Collect(seq), nil
}

func listItems(op string, v any) ([]any, error) {
	seq, _, err := structure.Seq(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s needs an array, got %T", domain.ErrBadQuery, op, v)
	}
	return slices.Collect(seq), nil
}

func parseLogical(op string, arg any) (domain.Filter, error) {
	switch op {
	case "$and", "$or", "$nor":
		items, err := listItems(op, arg)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: %s needs a non-empty array", domain.ErrBadQuery, op)
		}
		filters := make([]domain.Filter, len(items))
		for n, item := range items {
			if filters[n], err = parseQuery(item); err != nil {
				return nil, err
			}
		}
		switch op {
		case "$and":
			return domain.And{Filters: filters}, nil
		case "$or":
			return domain.Or{Filters: filters}, nil
		default:
			return domain.Not{Filter: domain.Or{Filters: filters}}, nil
		}
	case "$not":
		f, err := parseQuery(arg)
		if err != nil {
			return nil, err
		}
		return domain.Not{Filter: f}, nil
	case "$text":
		fields, err := objectFields(arg)
		if err != nil {
			return nil, err
		}
		search, ok := fields["$search"].(string)
		if !ok || len(fields) != 1 {
			return nil, fmt.Errorf("%w: $text expects {$search: string}", domain.ErrBadQuery)
		}
		return domain.Text{Search: search}, nil
	}
	return nil, domain.ErrUnknownOperator{Operator: op}
}

func parseField(field string, v any) (domain.Filter, error) {
	if re, ok := v.(*regexp.Regexp); ok {
		return domain.Regex{Field: field, Pattern: re.String()}, nil
	}
	ops, isOps, err := operators(v)
	if err != nil {
		return nil, err
	}
	if !isOps {
		lit, err := literal(v)
		if err != nil {
			return nil, err
		}
		return domain.Eq{Field: field, Value: lit}, nil
	}
	return parseOperators(field, ops)
}

// operators returns the fields of v if it is an operator object. Objects with
// no operators are literals.
func operators(v any) (map[string]any, bool, error) {
	if _, ok := v.(time.Time); ok || v == nil {
		return nil, false, nil
	}
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return nil, false, nil
	}
	fields := maps.Collect(seq)
	dollar := 0
	for k := range fields {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	switch dollar {
	case 0:
		return nil, false, nil
	case len(fields):
		return fields, true, nil
	default:
		return nil, false, fmt.Errorf("%w: cannot mix operators and fields", domain.ErrBadQuery)
	}
}

func parseOperators(field string, ops map[string]any) (domain.Filter, error) {
	if _, ok := ops["$options"]; ok {
		if _, ok := ops["$regex"]; !ok {
			return nil, fmt.Errorf("%w: $options without $regex", domain.ErrBadQuery)
		}
	}
	filters := make([]domain.Filter, 0, len(ops))
	for _, op := range slices.Sorted(maps.Keys(ops)) {
		if op == "$options" {
			continue
		}
		f, err := parseOperator(field, op, ops[op], ops["$options"])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return joinAnd(filters), nil
}

func parseOperator(field, op string, arg, options any) (domain.Filter, error) {
	switch op {
	case "$eq", "$ne":
		lit, err := literal(arg)
		if err != nil {
			return nil, err
		}
		var f domain.Filter = domain.Eq{Field: field, Value: lit}
		if op == "$ne" {
			f = domain.Not{Filter: f}
		}
		return f, nil
	case "$gt", "$gte", "$lt", "$lte":
		lit, err := literal(arg)
		if err != nil {
			return nil, err
		}
		return domain.Cmp{Field: field, Op: domain.CmpOp(op), Value: lit}, nil
	case "$in", "$nin":
		values, err := literalList(op, arg)
		if err != nil {
			return nil, err
		}
		var f domain.Filter = domain.In{Field: field, Values: values}
		if op == "$nin" {
			f = domain.Not{Filter: f}
		}
		return f, nil
	case "$all":
		values, err := literalList(op, arg)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: $all needs a non-empty array", domain.ErrBadQuery)
		}
		filters := make([]domain.Filter, len(values))
		for n, v := range values {
			filters[n] = domain.Contains{Field: field, Value: v}
		}
		return joinAnd(filters), nil
	case "$exists":
		return domain.Exists{Field: field, Exists: truthy(arg)}, nil
	case "$regex":
		return parseRegex(field, arg, options)
	case "$not":
		if re, ok := arg.(*regexp.Regexp); ok {
			return domain.Not{Filter: domain.Regex{Field: field, Pattern: re.String()}}, nil
		}
		sub, isOps, err := operators(arg)
		if err != nil {
			return nil, err
		}
		if !isOps {
			return nil, fmt.Errorf("%w: $not needs an operator object or a regular expression", domain.ErrBadQuery)
		}
		f, err := parseOperators(field, sub)
		if err != nil {
			return nil, err
		}
		return domain.Not{Filter: f}, nil
	}
	return nil, domain.ErrUnknownOperator{Operator: op}
}

func parseRegex(field string, arg, options any) (domain.Filter, error) {
	var pattern string
	switch t := arg.(type) {
	case string:
		pattern = t
	case *regexp.Regexp:
		pattern = t.String()
	default:
		return nil, fmt.Errorf("%w: $regex needs a string, got %T", domain.ErrBadQuery, arg)
	}

	res := domain.Regex{Field: field, Pattern: pattern}
	if options == nil {
		return res, nil
	}
	opts, ok := options.(string)
	if !ok {
		return nil, fmt.Errorf("%w: $options needs a string, got %T", domain.ErrBadQuery, options)
	}
	var flags string
	for _, r := range opts {
		switch r {
		case 'i':
			res.CaseInsensitive = true
		case 'm', 's':
			flags += string(r)
		default:
			return nil, fmt.Errorf("%w: unsupported regex option %q", domain.ErrBadQuery, r)
		}
	}
	if flags != "" {
		res.Pattern = "(?" + flags + ")" + res.Pattern
	}
	return res, nil
}

// literal converts maps, structs and slices of any type into the values
// documents hold.
func literal(v any) (any, error) {
	doc, err := data.NewDocument(map[string]any{"v": v})
	if err != nil {
		return nil, err
	}
	return doc.Get("v"), nil
}

func literalList(op string, v any) ([]any, error) {
	items, err := listItems(op, v)
	if err != nil {
		return nil, err
	}
	for n, item := range items {
		if items[n], err = literal(item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if f, ok := data.AsFloat(v); ok {
		return f != 0
	}
	return true
}
