// Package procedure serves named query and mutation procedures over HTTP.
package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"exbuddy/internal/common/errors"
	"exbuddy/internal/common/validation"
	"exbuddy/internal/reqctx"
)

type Kind int

const (
	Query Kind = iota
	Mutation
)

func (k Kind) String() string {
	if k == Mutation {
		return "mutation"
	}
	return "query"
}

// Handler runs one procedure. input is the raw JSON input, possibly empty.
type Handler func(ctx context.Context, rc *reqctx.Context, input json.RawMessage) (interface{}, error)

type Procedure struct {
	Path    string
	Kind    Kind
	Schema  *validation.Schema
	Handler Handler
}

// Registry maps dot separated paths to procedures.
type Registry struct {
	procs map[string]Procedure
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure)}
}

func (r *Registry) Query(path string, schema *validation.Schema, h Handler) {
	r.add(Procedure{Path: path, Kind: Query, Schema: schema, Handler: h})
}

func (r *Registry) Mutation(path string, schema *validation.Schema, h Handler) {
	r.add(Procedure{Path: path, Kind: Mutation, Schema: schema, Handler: h})
}

func (r *Registry) add(p Procedure) {
	if _, dup := r.procs[p.Path]; dup {
		panic(fmt.Sprintf("procedure %q registered twice", p.Path))
	}
	r.procs[p.Path] = p
}

func (r *Registry) Lookup(path string) (Procedure, bool) {
	p, ok := r.procs[path]
	return p, ok
}

// Paths lists registered paths in order.
func (r *Registry) Paths() []string {
	out := make([]string, 0, len(r.procs))
	for p := range r.procs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Call validates input and runs the procedure registered at path.
func (r *Registry) Call(ctx context.Context, rc *reqctx.Context, kind Kind, path string, input json.RawMessage) (interface{}, error) {
	p, ok := r.procs[path]
	if !ok {
		return nil, errors.NewNotFoundError(path)
	}
	if p.Kind != kind {
		return nil, errors.NewBadRequestError(fmt.Sprintf("%s is a %s, not a %s", path, p.Kind, kind))
	}
	if p.Schema != nil {
		if res := p.Schema.ValidateJSON(input); !res.Valid {
			return nil, errors.NewBadRequestError(res.String())
		}
	}
	return p.Handler(ctx, rc, input)
}
