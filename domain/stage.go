package domain

// Stage is one step of an aggregation pipeline. Stages never modify the
// documents they receive.
type Stage interface {
	// StageName returns the operator name of the stage.
	StageName() string
}

// Match keeps the documents matched by Filter.
type Match struct {
	Filter Filter
}

// StageName implements [Stage].
func (Match) StageName() string { return "$match" }

// NamedExpr binds an expression to an output field name.
type NamedExpr struct {
	Name string
	Expr Expr
}

// Project replaces each document by one holding the computed fields. The
// identifier is kept unless ExcludeID is set.
type Project struct {
	Fields    []NamedExpr
	ExcludeID bool
}

// StageName implements [Stage].
func (Project) StageName() string { return "$project" }

// AccOp is a group accumulator operator.
type AccOp string

// Group accumulators.
const (
	AccSum      AccOp = "$sum"
	AccAvg      AccOp = "$avg"
	AccMin      AccOp = "$min"
	AccMax      AccOp = "$max"
	AccCount    AccOp = "$count"
	AccPush     AccOp = "$push"
	AccFirst    AccOp = "$first"
	AccLast     AccOp = "$last"
	AccAddToSet AccOp = "$addToSet"
)

// Accumulator folds the values of Expr within a group into the field Name.
// [AccCount] ignores Expr.
type Accumulator struct {
	Name string
	Op   AccOp
	Expr Expr
}

// Group emits one document per distinct Key value, holding the key under
// "_id" and one field per accumulator. Groups are emitted in the order their
// keys were first seen.
type Group struct {
	Key          Expr
	Accumulators []Accumulator
}

// StageName implements [Stage].
func (Group) StageName() string { return "$group" }

// UnwindPolicy tells [Unwind] what to do with documents whose field is not a
// non-empty array.
type UnwindPolicy uint8

const (
	// UnwindDrop silently drops the document.
	UnwindDrop UnwindPolicy = iota
	// UnwindStrict fails the pipeline with [ErrTypeMismatch]. Empty
	// arrays are still dropped.
	UnwindStrict
	// UnwindPreserve passes the document through, removing the field
	// when it is null or an empty array.
	UnwindPreserve
)

// Unwind emits one document per element of the array at Field, with the field
// replaced by the element.
type Unwind struct {
	Field  string
	Policy UnwindPolicy
}

// StageName implements [Stage].
func (Unwind) StageName() string { return "$unwind" }

// SortBy orders documents by Keys with a stable sort.
type SortBy struct {
	Keys Sort
}

// StageName implements [Stage].
func (SortBy) StageName() string { return "$sort" }

// Limit truncates the stream to at most N documents.
type Limit struct {
	N int
}

// StageName implements [Stage].
func (Limit) StageName() string { return "$limit" }

// Skip drops the first N documents of the stream.
type Skip struct {
	N int
}

// StageName implements [Stage].
func (Skip) StageName() string { return "$skip" }

// Expr is an expression evaluated against a document by [Project] and
// [Group].
type Expr interface {
	// ExprOp returns the operator name of the expression.
	ExprOp() string
}

// FieldRef reads the value at Path. Missing fields evaluate to undefined.
type FieldRef struct {
	Path string
}

// ExprOp implements [Expr].
func (FieldRef) ExprOp() string { return "$field" }

// Literal evaluates to Value.
type Literal struct {
	Value any
}

// ExprOp implements [Expr].
func (Literal) ExprOp() string { return "$literal" }

// Object evaluates to a document built from its fields.
type Object struct {
	Fields []NamedExpr
}

// ExprOp implements [Expr].
func (Object) ExprOp() string { return "$object" }

// Add evaluates to the sum of its arguments.
type Add struct {
	Args []Expr
}

// ExprOp implements [Expr].
func (Add) ExprOp() string { return "$add" }

// Multiply evaluates to the product of its arguments.
type Multiply struct {
	Args []Expr
}

// ExprOp implements [Expr].
func (Multiply) ExprOp() string { return "$multiply" }

// Subtract evaluates to A - B.
type Subtract struct {
	A, B Expr
}

// ExprOp implements [Expr].
func (Subtract) ExprOp() string { return "$subtract" }

// Divide evaluates to A / B.
type Divide struct {
	A, B Expr
}

// ExprOp implements [Expr].
func (Divide) ExprOp() string { return "$divide" }

// Mod evaluates to the remainder of A / B.
type Mod struct {
	A, B Expr
}

// ExprOp implements [Expr].
func (Mod) ExprOp() string { return "$mod" }

// Ref returns a [FieldRef] for path.
func Ref(path string) FieldRef { return FieldRef{Path: path} }

// Lit returns a [Literal] for v.
func Lit(v any) Literal { return Literal{Value: v} }
