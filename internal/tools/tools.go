// Package tools holds the registry of functions the model may call and
// the built-in tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrUnavailable is returned by a tool whose backing service is down or
// was never configured. The dispatcher relays it to the model as a
// system note rather than failing the whole exchange.
var ErrUnavailable = errors.New("tool unavailable")

// Handler executes a single tool call. args has already passed
// required-argument validation.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool describes one callable function.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	// Slow marks tools whose latency should widen the dispatcher's
	// retry delay for the rest of the exchange.
	Slow    bool
	Handler Handler
}

// Registry maps tool names to their implementations.
type Registry struct {
	tools  map[string]Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t Tool) {
	if t.Name == "" || t.Handler == nil {
		panic("tools: Register requires a name and a handler")
	}
	r.tools[t.Name] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns tool definitions in the wire shape the chat backend
// expects, sorted by name for stable request bodies.
func (r *Registry) List() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return defs
}

// Execute parses the model-supplied JSON arguments, checks required
// parameters, and runs the named tool.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	args := make(map[string]any)
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("tool %s: bad arguments: %w", name, err)
		}
	}
	if err := checkRequired(t.Parameters, args); err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	r.logger.Debug("executing tool", "tool", name)
	out, err := r.invoke(ctx, t, args)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}

// invoke runs the handler, converting a panic into an ordinary error so
// the exchange survives a misbehaving tool.
func (r *Registry) invoke(ctx context.Context, t Tool, args map[string]any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", t.Name, "panic", rec)
			err = fmt.Errorf("internal failure: %v", rec)
		}
	}()
	return t.Handler(ctx, args)
}

func checkRequired(schema, args map[string]any) error {
	var required []string
	switch v := schema["required"].(type) {
	case []string:
		required = v
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok {
				required = append(required, s)
			}
		}
	}
	for _, key := range required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("missing required argument %q", key)
		}
	}
	return nil
}

// stringArg returns args[key] as a string, or "" when absent or not a
// string.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
