// Package docstore is a small document-store abstraction over MongoDB, a
// Postgres JSONB table layout and an in-process map. Domain repositories
// talk to a Collection and never see the driver underneath.
//
// Filters are deliberately narrow: equality and numeric greater-than
// conditions, ANDed together. Every richer predicate (substring search,
// date normalisation) runs in the domain layer on the returned documents.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = errors.New("document not found")

// Collection names.
const (
	Patients = "patients"
	Services = "services"
	Staff    = "staff"
)

// Document is a stored value with a store-assigned id (the "_id" field).
type Document interface {
	DocumentID() string
	SetDocumentID(id string)
}

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpGt
)

// Cond is a single field condition.
type Cond struct {
	Field string
	Op    Op
	Value interface{}
}

// Eq matches documents whose field equals v.
func Eq(field string, v interface{}) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

// Gt matches documents whose numeric field is strictly greater than v.
func Gt(field string, v interface{}) Cond { return Cond{Field: field, Op: OpGt, Value: v} }

// Filter is a conjunction of conditions. An empty filter matches everything.
type Filter []Cond

// Sort orders results by a single field. Chrono marks timestamp fields so
// backends that store them as text compare them as instants.
type Sort struct {
	Field  string
	Desc   bool
	Chrono bool
}

// NewestFirst sorts by field, most recent first.
func NewestFirst(field string) *Sort {
	return &Sort{Field: field, Desc: true, Chrono: true}
}

// FindOptions controls ordering and size of a Find result. Limit <= 0 means
// no limit.
type FindOptions struct {
	Sort  *Sort
	Limit int
}

// Collection is a named set of documents.
type Collection interface {
	Name() string
	// Insert stores doc, assigning a store id when it has none.
	Insert(ctx context.Context, doc Document) error
	// FindOne decodes the first match into out.
	FindOne(ctx context.Context, f Filter, out Document) error
	// Find decodes all matches into out, which must point to a slice.
	Find(ctx context.Context, f Filter, opts FindOptions, out interface{}) error
	// Replace overwrites the document with doc's store id.
	Replace(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, f Filter) (int64, error)
}

// Store hands out collections and owns the underlying connection.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validField guards field and collection names that some backends splice
// into query text.
func validField(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("docstore: invalid field name %q", name)
	}
	return nil
}

// textValue renders a filter value the way it appears when a JSON document
// field is read back as text.
func textValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
