package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/oss-mcp/research-engine/internal/config"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CrossAliasError is returned when a caller supplies a job id where a
// numeric report id is expected (or vice versa), per spec.md §4.2
// "Cross-alias detection" — the handler must explain the distinction and
// the recovery steps rather than fail with an opaque type error.
type CrossAliasError struct {
	Tool  string
	Field string
	Got   string
}

func (e *CrossAliasError) Error() string {
	return fmt.Sprintf(
		"dispatch: tool %q: field %q looks like a job id (%q), but a numeric report id is required here; "+
			"job ids and report ids are different identifier spaces — use job_status to inspect a job, "+
			"and wait for its report_saved event to learn the report id",
		e.Tool, e.Field, e.Got)
}

// Handler executes a normalized, validated tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	tool     Tool
	schema   *jsonschema.Schema
	propType map[string]string
	handler  Handler
}

// Dispatcher normalizes and validates tools/call(name, arguments) before
// invoking the registered handler, per spec.md §4.2.
type Dispatcher struct {
	mode config.Mode

	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// New creates a Dispatcher exposing the catalog for mode.
func New(mode config.Mode) *Dispatcher {
	return &Dispatcher{mode: mode, tools: make(map[string]*registeredTool)}
}

// Register compiles a tool's schema and binds its handler. Called once per
// tool at boot, from registerTools in cmd/researchmcp/tools.go.
func (d *Dispatcher) Register(tool Tool, h Handler) error {
	schema, doc, err := compileSchema(tool.Name, tool.Schema)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[tool.Name] = &registeredTool{
		tool:     tool,
		schema:   schema,
		propType: propertyTypes(doc),
		handler:  h,
	}
	return nil
}

// Catalog returns the names of registered tools visible in the
// dispatcher's configured mode.
func (d *Dispatcher) Catalog() []string {
	allowed := make(map[string]struct{})
	for _, name := range Catalog(d.mode) {
		allowed[name] = struct{}{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tools))
	for name := range d.tools {
		if _, ok := allowed[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Descriptors returns the registered Tool definitions (name, category,
// schema) visible in the dispatcher's configured mode, for the transport's
// tools/list handler.
func (d *Dispatcher) Descriptors() []Tool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	allowed := make(map[string]struct{})
	for _, name := range Catalog(d.mode) {
		allowed[name] = struct{}{}
	}
	out := make([]Tool, 0, len(d.tools))
	for name, rt := range d.tools {
		if _, ok := allowed[name]; ok {
			out = append(out, rt.tool)
		}
	}
	return out
}

// ErrUnknownTool is returned when name isn't registered at all.
var ErrUnknownTool = errors.New("dispatch: unknown tool")

// ErrToolNotExposed is returned when a tool is registered but the current
// mode hides it from the catalog.
var ErrToolNotExposed = errors.New("dispatch: tool not exposed in current mode")

// Normalize runs the full alias/default/coercion/validation pipeline of
// spec.md §4.2 steps 1-5 without invoking the handler, exposed separately
// so transports can preview/validate before committing to an async job.
// name must be registered; mode-exposure is enforced by Dispatch, not here,
// since the `agent` router legally normalizes targets AGENT mode hides from
// direct invocation.
func (d *Dispatcher) Normalize(name string, args map[string]any) (map[string]any, error) {
	rt, err := d.lookupRegistered(name)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}

	normalized := applyAliases(args, rt.tool.Category)
	normalized = applyDefaults(normalized, rt.tool.Category)

	if err := detectCrossAlias(rt, normalized); err != nil {
		return nil, err
	}

	normalized = coerceTypes(normalized, rt.propType)

	if err := validateArgs(name, rt.schema, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Dispatch normalizes args and invokes the tool's handler, enforcing that
// name is exposed in the dispatcher's configured mode.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := d.checkExposed(name); err != nil {
		return nil, err
	}
	return d.invoke(ctx, name, args)
}

// invoke runs the normalize-then-handle pipeline without the mode-exposure
// check, used internally by AgentRouter: the `agent` tool itself is the
// thing exposed to the caller, and it may legally forward to a target tool
// that AGENT mode otherwise hides from direct invocation.
func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	rt, err := d.lookupRegistered(name)
	if err != nil {
		return nil, err
	}
	normalized, err := d.Normalize(name, args)
	if err != nil {
		return nil, err
	}
	return rt.handler(ctx, normalized)
}

func (d *Dispatcher) lookupRegistered(name string) (*registeredTool, error) {
	d.mu.RLock()
	rt, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return rt, nil
}

func (d *Dispatcher) checkExposed(name string) error {
	if _, err := d.lookupRegistered(name); err != nil {
		return err
	}
	for _, n := range Catalog(d.mode) {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q (mode %s)", ErrToolNotExposed, name, d.mode)
}

// detectCrossAlias implements spec.md §4.2's "Cross-alias detection": a
// report/graph tool whose schema declares "id" as numeric, fed a
// job-id-shaped string, gets a structured explanatory error instead of a
// generic type-coercion failure.
func detectCrossAlias(rt *registeredTool, args map[string]any) error {
	if rt.tool.Category != CategoryReport && rt.tool.Category != CategoryGraph {
		return nil
	}
	raw, ok := args["id"]
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok || !jobIDPattern.MatchString(s) {
		return nil
	}
	want := rt.propType["id"]
	if want != "number" && want != "integer" {
		return nil
	}
	return &CrossAliasError{Tool: rt.tool.Name, Field: "id", Got: s}
}

// AgentAction is the closed sum of request variants the `agent` router
// tool dispatches across, per REDESIGN FLAGS (avoid dynamic switch(typeof)
// in favor of an exhaustive tagged-variant dispatch).
type AgentAction string

const (
	ActionResearch AgentAction = "research"
	ActionRetrieve AgentAction = "retrieve"
	ActionFollowUp AgentAction = "follow_up"
	ActionGraphQry AgentAction = "graph_query"
)

// AgentRouter inspects an `agent` tool call's declared action and forwards
// it to the corresponding registered tool, per spec.md §4.2's description
// of the `agent` tool as "a router: it inspects its input and forwards to
// one of {research, retrieve, follow_up, graph_query}".
func (d *Dispatcher) AgentRouter(ctx context.Context, args map[string]any) (any, error) {
	rawAction, _ := args["action"].(string)
	action := AgentAction(rawAction)

	var target string
	switch action {
	case ActionResearch:
		target = "research"
	case ActionRetrieve:
		target = "retrieve"
	case ActionFollowUp:
		target = "follow_up"
	case ActionGraphQry:
		target = "graph_query"
	default:
		return nil, fmt.Errorf("dispatch: agent: unknown action %q, expected one of research|retrieve|follow_up|graph_query", rawAction)
	}
	delete(args, "action")
	return d.invoke(ctx, target, args)
}

// mustMarshal marshals v into a json.RawMessage, panicking on error, for
// building Tool.Schema values from Go values instead of hand-written JSON
// strings. The tool registrations in this module use JSON string literals
// and do not call it.
func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
