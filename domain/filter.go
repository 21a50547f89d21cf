package domain

// Filter is a node of a filter expression tree. Filters are immutable once
// built and are compiled into a [Predicate] by a [Matcher].
type Filter interface {
	// FilterOp returns the operator name of the node.
	FilterOp() string
}

// CmpOp is a range comparison operator.
type CmpOp string

// Range comparison operators.
const (
	OpGt  CmpOp = "$gt"
	OpGte CmpOp = "$gte"
	OpLt  CmpOp = "$lt"
	OpLte CmpOp = "$lte"
)

// MatchAll matches every document.
type MatchAll struct{}

// FilterOp implements [Filter].
func (MatchAll) FilterOp() string { return "$all" }

// Eq matches documents whose field equals Value. If the field holds an array
// and Value does not, any equal element matches. A nil Value also matches
// missing fields.
type Eq struct {
	Field string
	Value any
}

// FilterOp implements [Filter].
func (Eq) FilterOp() string { return "$eq" }

// Cmp matches documents whose field compares to Value as Op requires. Values
// of incompatible kinds never match.
type Cmp struct {
	Field string
	Op    CmpOp
	Value any
}

// FilterOp implements [Filter].
func (c Cmp) FilterOp() string { return string(c.Op) }

// In matches documents whose field equals any of Values, with [Eq] semantics.
type In struct {
	Field  string
	Values []any
}

// FilterOp implements [Filter].
func (In) FilterOp() string { return "$in" }

// Contains matches documents whose field is an array holding an element equal
// to Value.
type Contains struct {
	Field string
	Value any
}

// FilterOp implements [Filter].
func (Contains) FilterOp() string { return "$contains" }

// Regex matches documents whose field is a string (or an array with a string)
// matching Pattern.
type Regex struct {
	Field           string
	Pattern         string
	CaseInsensitive bool
}

// FilterOp implements [Filter].
func (Regex) FilterOp() string { return "$regex" }

// Exists matches documents where the field is defined, or undefined when
// Exists is false.
type Exists struct {
	Field  string
	Exists bool
}

// FilterOp implements [Filter].
func (Exists) FilterOp() string { return "$exists" }

// Text matches documents with a positive relevance score for Search in the
// text index. Querying it requires a text index.
type Text struct {
	Search string
}

// FilterOp implements [Filter].
func (Text) FilterOp() string { return "$text" }

// And matches documents matched by every filter.
type And struct {
	Filters []Filter
}

// FilterOp implements [Filter].
func (And) FilterOp() string { return "$and" }

// Or matches documents matched by at least one filter.
type Or struct {
	Filters []Filter
}

// FilterOp implements [Filter].
func (Or) FilterOp() string { return "$or" }

// Not matches documents not matched by Filter.
type Not struct {
	Filter Filter
}

// FilterOp implements [Filter].
func (Not) FilterOp() string { return "$not" }

// Gt returns a [Cmp] filter with [OpGt].
func Gt(field string, v any) Cmp { return Cmp{Field: field, Op: OpGt, Value: v} }

// Gte returns a [Cmp] filter with [OpGte].
func Gte(field string, v any) Cmp { return Cmp{Field: field, Op: OpGte, Value: v} }

// Lt returns a [Cmp] filter with [OpLt].
func Lt(field string, v any) Cmp { return Cmp{Field: field, Op: OpLt, Value: v} }

// Lte returns a [Cmp] filter with [OpLte].
func Lte(field string, v any) Cmp { return Cmp{Field: field, Op: OpLte, Value: v} }
