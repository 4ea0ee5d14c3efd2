// Package docstore provides create/read/update/delete access to named
// collections of JSON-shaped documents keyed by an opaque identifier.
package docstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IDField is the document key holding the identifier.
const IDField = "id"

var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrDuplicateID is returned when inserting a document whose id is taken.
	ErrDuplicateID = errors.New("docstore: duplicate document id")
)

// Document is a single stored record. Values are JSON-compatible.
type Document map[string]any

// ID returns the document identifier, or "" if unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Store is implemented by every backend.
type Store interface {
	// Insert stores doc, assigning a new identifier when doc has none.
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	// Get returns ErrNotFound when no document has the id.
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	Count(ctx context.Context, collection string, q Query) (int, error)
	// Update merges fields into an existing document; ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields Document) error
	// Delete removes the document and reports whether it existed. Deleting a
	// missing id is not an error.
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// Op is a filter operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter restricts a query to documents whose field matches.
type Filter struct {
	Field  string
	Op     Op
	Values []any
}

// Eq matches documents whose field equals v.
func Eq(field string, v any) Filter {
	return Filter{Field: field, Op: OpEq, Values: []any{v}}
}

// In matches documents whose field equals any of vs.
func In(field string, vs ...any) Filter {
	return Filter{Field: field, Op: OpIn, Values: vs}
}

// SortKey orders query results by a field.
type SortKey struct {
	Field string
	Desc  bool
}

func Asc(field string) SortKey  { return SortKey{Field: field} }
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// Query selects documents from a collection. Filters are ANDed. A zero
// Limit returns every match.
type Query struct {
	Filters []Filter
	Sort    []SortKey
	Limit   int
}

// Where builds a query from filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q sorted by keys.
func (q Query) OrderBy(keys ...SortKey) Query {
	q.Sort = append(slices.Clone(q.Sort), keys...)
	return q
}

// Take returns a copy of q limited to n results.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// NewID returns a fresh document identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a well-formed document identifier.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Encode converts a struct into a Document using its JSON tags.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return doc, nil
}

// Decode fills out from doc using out's JSON tags.
func Decode(doc Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}

// normalize deep-copies v into plain JSON types (string, float64, bool,
// []any, map[string]any, nil).
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

func normalizeDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// Matches reports whether doc satisfies every filter in q.
func Matches(doc Document, q Query) bool {
	for _, f := range q.Filters {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

func matchFilter(doc Document, f Filter) bool {
	got, ok := doc[f.Field]
	if !ok {
		return false
	}
	got = normalize(got)
	for _, want := range f.Values {
		if reflect.DeepEqual(got, normalize(want)) {
			return true
		}
	}
	return false
}

// Finish sorts docs by q.Sort, breaking ties by id, and applies q.Limit.
// Every backend orders results through Finish so paging is identical
// regardless of storage.
func Finish(docs []Document, q Query) []Document {
	slices.SortStableFunc(docs, func(a, b Document) int {
		for _, key := range q.Sort {
			c := compareValues(a[key.Field], b[key.Field])
			if key.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID(), b.ID())
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

// compareValues orders missing values first, RFC 3339 strings as instants,
// numbers numerically and everything else by its string form.
func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			at, errA := time.Parse(time.RFC3339Nano, as)
			bt, errB := time.Parse(time.RFC3339Nano, bs)
			if errA == nil && errB == nil {
				return at.Compare(bt)
			}
			return strings.Compare(as, bs)
		}
	}
	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			return cmp.Compare(af, bf)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func prepareInsert(doc Document) (Document, string) {
	out := normalizeDocument(doc)
	id := out.ID()
	if id == "" {
		id = NewID()
		out[IDField] = id
	}
	return out, id
}

func prepareUpdate(fields Document) Document {
	out := normalizeDocument(fields)
	delete(out, IDField)
	return out
}
