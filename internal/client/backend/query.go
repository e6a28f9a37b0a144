package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Cardinality is the number of rows a query asserts it returns.
type Cardinality int

const (
	Many Cardinality = iota
	// One fails with common.ErrNotFound when no row matches.
	One
	// MaybeOne decodes JSON null into out when no row matches.
	MaybeOne
)

// Executor runs a built query. The HTTP client is the production
// implementation; tests substitute their own.
type Executor interface {
	Execute(ctx context.Context, q *Query, out any) error
}

// Query is a PostgREST-style request builder. Methods mutate and return the
// receiver, so a query is built in one chain and executed once.
type Query struct {
	exec        Executor
	table       string
	method      string
	params      url.Values
	body        any
	prefer      []string
	cardinality Cardinality
}

func NewQuery(exec Executor, table string) *Query {
	return &Query{
		exec:   exec,
		table:  table,
		method: http.MethodGet,
		params: url.Values{},
	}
}

func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

func (q *Query) Eq(column string, value any) *Query {
	q.params.Add(column, "eq."+fmt.Sprint(value))
	return q
}

func (q *Query) Order(column string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.params.Add("order", column+"."+dir)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *Query) Single() *Query {
	q.cardinality = One
	return q
}

func (q *Query) MaybeSingle() *Query {
	q.cardinality = MaybeOne
	return q
}

// Insert posts payload (an object or a list of objects) and returns the
// stored rows.
func (q *Query) Insert(payload any) *Query {
	q.method = http.MethodPost
	q.body = payload
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Update patches every row matched by the filters.
func (q *Query) Update(payload any) *Query {
	q.method = http.MethodPatch
	q.body = payload
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Upsert inserts payload or merges it into the row that conflicts on
// onConflict.
func (q *Query) Upsert(payload any, onConflict string) *Query {
	q.method = http.MethodPost
	q.body = payload
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	q.prefer = append(q.prefer, "resolution=merge-duplicates", "return=representation")
	return q
}

func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	q.prefer = append(q.prefer, "return=representation")
	return q
}

// Execute runs the query and decodes the result into out, which may be nil
// for writes whose result is not needed.
func (q *Query) Execute(ctx context.Context, out any) error {
	return q.exec.Execute(ctx, q, out)
}

func (q *Query) Table() string            { return q.table }
func (q *Query) Method() string           { return q.method }
func (q *Query) Params() url.Values       { return q.params }
func (q *Query) Body() any                { return q.body }
func (q *Query) Cardinality() Cardinality { return q.cardinality }

// Prefer is the value of the Prefer header, empty for plain reads.
func (q *Query) Prefer() string { return strings.Join(q.prefer, ",") }
