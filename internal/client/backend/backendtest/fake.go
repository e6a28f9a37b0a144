// Package backendtest provides an in-memory backend.Data for tests. Queries
// are recorded and answered from canned JSON per table.
package backendtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/santinotanus/medtrace/internal/client/backend"
)

// Reply is the canned answer for a table. Body is decoded into the
// caller's out value as the HTTP client would.
type Reply struct {
	Body string
	Err  error
}

type Data struct {
	mu      sync.Mutex
	replies map[string][]Reply
	queries []*backend.Query
}

func NewData() *Data {
	return &Data{replies: make(map[string][]Reply)}
}

// On queues replies for table; they are consumed in order and the last one
// repeats.
func (d *Data) On(table string, replies ...Reply) *Data {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[table] = append(d.replies[table], replies...)
	return d
}

func (d *Data) From(table string) *backend.Query {
	return backend.NewQuery(d, table)
}

func (d *Data) Execute(_ context.Context, q *backend.Query, out any) error {
	d.mu.Lock()
	d.queries = append(d.queries, q)
	queue := d.replies[q.Table()]
	var r Reply
	if len(queue) > 0 {
		r = queue[0]
		if len(queue) > 1 {
			d.replies[q.Table()] = queue[1:]
		}
	}
	d.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}
	if r.Body == "" || out == nil {
		return nil
	}
	return json.Unmarshal([]byte(r.Body), out)
}

// Queries returns the executed queries, oldest first.
func (d *Data) Queries() []*backend.Query {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*backend.Query, len(d.queries))
	copy(out, d.queries)
	return out
}

// Last returns the most recent query or nil.
func (d *Data) Last() *backend.Query {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queries) == 0 {
		return nil
	}
	return d.queries[len(d.queries)-1]
}

// Functions is a fake backend.Functions.
type Functions struct {
	mu       sync.Mutex
	Body     string
	Err      error
	Calls    int
	LastName string
	LastBody any
}

func (f *Functions) Invoke(_ context.Context, name string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.LastName = name
	f.LastBody = body
	if f.Err != nil {
		return f.Err
	}
	if f.Body == "" || out == nil {
		return nil
	}
	return json.Unmarshal([]byte(f.Body), out)
}
