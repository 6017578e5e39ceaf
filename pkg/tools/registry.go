package tools

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrEmptyToolName = errors.New("tool name cannot be empty")
	ErrDuplicateTool = errors.New("tool already registered")
)

type registeredTool struct {
	tool   Tool
	desc   Descriptor
	schema *gojsonschema.Schema
}

// Registry is a case-insensitive name to tool table. It is written during
// startup and read during runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a tool. Names are trimmed; empty and duplicate names are
// rejected, as are input schemas that do not compile.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}

	desc := tool.Descriptor()
	desc.Name = strings.TrimSpace(desc.Name)
	key := normalizeName(desc.Name)
	if key == "" {
		return ErrEmptyToolName
	}

	schema, err := compileSchema(desc.InputSchema)
	if err != nil {
		return fmt.Errorf("invalid input schema for %s: %w", desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	r.tools[key] = &registeredTool{tool: tool, desc: desc, schema: schema}

	log.Info().Str("tool", desc.Name).Msg("Tool registered")
	return nil
}

// MustRegister registers a tool and panics on error. Intended for startup.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	entry, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[normalizeName(name)]
	return entry, ok
}

// List returns every descriptor sorted by name
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for _, entry := range r.tools {
		out = append(out, entry.desc)
	}
	sort.Slice(out, func(i, j int) bool {
		return normalizeName(out[i].Name) < normalizeName(out[j].Name)
	})
	return out
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// compileSchema returns nil for an empty schema, meaning any object is accepted
func compileSchema(s Schema) (*gojsonschema.Schema, error) {
	if s.Type == "" && len(s.Properties) == 0 && len(s.Required) == 0 {
		return nil, nil
	}

	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return nil, fmt.Errorf("required property %q is not declared", req)
		}
	}

	schemaMap := map[string]any{"type": s.Type}
	if s.Type == "" {
		schemaMap["type"] = "object"
	}

	props := make(map[string]any, len(s.Properties))
	for name, field := range s.Properties {
		if field.Type == "" {
			return nil, fmt.Errorf("property %q has no type", name)
		}
		p := map[string]any{"type": field.Type}
		if field.Description != "" {
			p["description"] = field.Description
		}
		if len(field.Enum) > 0 {
			p["enum"] = field.Enum
		}
		props[name] = p
	}
	schemaMap["properties"] = props
	if len(s.Required) > 0 {
		schemaMap["required"] = s.Required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateArguments checks args against a compiled schema
func validateArguments(schema *gojsonschema.Schema, args []byte) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}
