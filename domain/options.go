package domain

// FindOption configures query behavior through the functional options pattern.
type FindOption func(*FindOptions)

// FindOptions contains parameters for customizing query execution.
type FindOptions struct {
	// Projection maps field paths to 1 (keep) or 0 (omit). Keeping and
	// omitting cannot be mixed, except for _id.
	Projection map[string]int
	// Sort specifies the sort order for results.
	Sort Sort
	// Skip specifies the number of documents to skip.
	Skip int
	// Limit specifies the maximum number of documents to return. Zero
	// means no limit.
	Limit int
	// Hint forces the use of an index.
	Hint IndexHandle
	// TextScore, when set, adds the relevance score of [Text] queries to
	// each result under this field name.
	TextScore string
}

// WithProjection specifies which fields to include or exclude from query
// results.
func WithProjection(p map[string]int) FindOption {
	return func(fo *FindOptions) {
		fo.Projection = p
	}
}

// WithSort specifies the sort order for query results.
func WithSort(s ...SortKey) FindOption {
	return func(fo *FindOptions) {
		fo.Sort = s
	}
}

// WithSkip sets the number of documents to skip in query results.
func WithSkip(s int) FindOption {
	return func(fo *FindOptions) {
		fo.Skip = s
	}
}

// WithLimit sets the maximum number of documents to return.
func WithLimit(l int) FindOption {
	return func(fo *FindOptions) {
		fo.Limit = l
	}
}

// WithHint forces the query to use the given index.
func WithHint(h IndexHandle) FindOption {
	return func(fo *FindOptions) {
		fo.Hint = h
	}
}

// WithTextScore adds the relevance score of text queries to the results under
// the given field.
func WithTextScore(field string) FindOption {
	return func(fo *FindOptions) {
		fo.TextScore = field
	}
}

// CompileOption configures how a [Matcher] compiles a filter.
type CompileOption func(*CompileOptions)

// CompileOptions contains the collaborators available to compiled predicates.
type CompileOptions struct {
	// TextScorer evaluates [Text] nodes. Compiling a [Text] node without
	// it fails with [ErrBadQuery].
	TextScorer TextScorer
}

// WithTextScorer sets the scorer used by [Text] nodes.
func WithTextScorer(t TextScorer) CompileOption {
	return func(co *CompileOptions) {
		co.TextScorer = t
	}
}

// CursorOption configures cursor behavior through the functional options
// pattern.
type CursorOption func(*CursorOptions)

// CursorOptions contains parameters for customizing cursors.
type CursorOptions struct {
	// Decoder decodes documents into scan targets.
	Decoder Decoder
}

// WithCursorDecoder sets the decoder used by [Cursor.Scan].
func WithCursorDecoder(d Decoder) CursorOption {
	return func(co *CursorOptions) {
		co.Decoder = d
	}
}
