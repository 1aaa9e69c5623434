// Package tools implements the tool registry (C12): the adapter layer
// between the (out-of-scope) tool-invocation transport and the operation
// adapters. A tool is a (name, parameterSchema, handler) triple per
// spec.md §6; Invoke validates the caller's session token (except for
// authenticate itself), recovers from any handler panic the way the
// teacher's gateway/middleware.go panicRecovery does, and always returns a
// ResponseEnvelope — no exceptional control flow escapes this boundary.
package tools

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/monitoring"
	"github.com/Pelmog/zigi-amazon-mcp/internal/operations"
	"github.com/Pelmog/zigi-amazon-mcp/internal/session"
)

// Handler is the shape every tool's business logic takes: a parameter map
// decoded from the transport's request, one envelope result.
type Handler func(ctx context.Context, params map[string]interface{}) envelope.Envelope

// Tool is the (name, parameterSchema, handler) triple spec.md §6 requires.
// ParameterSchema is advisory metadata for the transport (e.g. to render
// JSON Schema); the registry itself does not validate against it — each
// handler validates its own inputs via the adapter it calls.
type Tool struct {
	Name            string
	ParameterSchema map[string]interface{}
	Handler         Handler
	RequiresToken   bool
}

// Registry is the thread-safe name → Tool map every invocation looks up.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	gate  *session.Gate
	alerts *monitoring.AlertManager
}

// NewRegistry builds a Registry with the required tool surface (spec.md §6)
// wired to ops and gated by gate.
func NewRegistry(ops *operations.Adapter, gate *session.Gate, alerts *monitoring.AlertManager) *Registry {
	r := &Registry{tools: make(map[string]Tool), gate: gate, alerts: alerts}
	for _, t := range builtinTools(ops, gate) {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Get returns a registered tool by name, mainly for transport introspection
// (listing available tools/schemas).
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// Invoke looks up name, validates the session token unless the tool is
// exempt (authenticate), and runs its handler under panic recovery.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]interface{}) (result envelope.Envelope) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "unknown tool: "+name), envelope.Metadata{})
	}

	defer func() {
		if v := recover(); v != nil {
			stack := string(debug.Stack())
			if r.alerts != nil {
				r.alerts.FlagPanic("", v, stack)
			}
			result = envelope.Failure(envelope.New(envelope.Internal, "tool handler panicked"), envelope.Metadata{})
		}
	}()

	if t.RequiresToken {
		if err := r.gate.Validate(strParam(params, "token")); err != nil {
			return envelope.Failure(err, envelope.Metadata{})
		}
	}
	return t.Handler(ctx, params)
}
