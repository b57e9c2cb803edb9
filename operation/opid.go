// Package operation tracks the motions running on an arm and ensures only one runs at a time.
package operation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

type opidKeyType string

const opidKey = opidKeyType("opid")

// Operation is a motion request in progress.
type Operation struct {
	ID        uuid.UUID
	Method    string
	Arguments interface{}
	Started   time.Time

	cancel context.CancelFunc
}

// Cancel cancels the context associated with an operation.
func (o *Operation) Cancel() {
	o.cancel()
}

// Registry holds the operations currently running.
type Registry struct {
	mu    sync.Mutex
	ops   map[uuid.UUID]*Operation
	clock clock.Clock
}

// NewRegistry returns an empty registry timestamping operations with clk.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{ops: map[uuid.UUID]*Operation{}, clock: clk}
}

// Create puts a new operation on this context. Nested calls reuse the outer operation. The
// returned function removes the operation from the registry.
func (r *Registry) Create(ctx context.Context, method string, args interface{}) (context.Context, func()) {
	if Get(ctx) != nil {
		return ctx, func() {}
	}

	op := &Operation{
		ID:        uuid.New(),
		Method:    method,
		Arguments: args,
		Started:   r.clock.Now(),
	}
	ctx = context.WithValue(ctx, opidKey, op)
	ctx, op.cancel = context.WithCancel(ctx)

	r.mu.Lock()
	r.ops[op.ID] = op
	r.mu.Unlock()

	return ctx, func() {
		op.cancel()
		r.mu.Lock()
		delete(r.ops, op.ID)
		r.mu.Unlock()
	}
}

// All returns the running operations.
func (r *Registry) All() []*Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		all = append(all, op)
	}
	return all
}

// Find finds an op by id, could return nil.
func (r *Registry) Find(id uuid.UUID) *Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[id]
}

// FindString finds an op by its string id, could return nil.
func (r *Registry) FindString(id string) *Operation {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil
	}
	return r.Find(parsed)
}

// Get returns the current Operation. This can be nil.
func Get(ctx context.Context) *Operation {
	op, _ := ctx.Value(opidKey).(*Operation)
	return op
}
