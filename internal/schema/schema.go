// Package schema validates entity payloads against CUE definitions before
// they are written to the store. The store itself accepts any payload
// shape, so this is the only structural gate.
package schema

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed entities.cue
var entitiesCUE string

// definitionFor maps entity types to their CUE definition paths.
var definitionFor = map[string]string{
	"appointment":        "#Appointment",
	"emergency_contact":  "#EmergencyContact",
	"meditation_session": "#MeditationSession",
}

// ValidationError reports a payload that failed its entity schema. It is a
// structured rejection, not a store failure.
type ValidationError struct {
	EntityType string
	Detail     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.EntityType, e.Detail)
}

// Registry holds the compiled entity schemas.
type Registry struct {
	schemas map[string]cue.Value
}

// NewRegistry compiles the embedded schema definitions.
func NewRegistry() (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(entitiesCUE)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compiling entity schemas: %w", err)
	}

	schemas := make(map[string]cue.Value, len(definitionFor))
	for entityType, path := range definitionFor {
		def := root.LookupPath(cue.ParsePath(path))
		if !def.Exists() {
			return nil, fmt.Errorf("entity schema %s not found", path)
		}
		schemas[entityType] = def
	}
	return &Registry{schemas: schemas}, nil
}

// EntityTypes lists the entity types the registry can validate.
func (r *Registry) EntityTypes() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	return types
}

// Validate checks a payload against its entity schema. An unknown entity
// type is an error: writes for unmodeled entities must not pass silently.
func (r *Registry) Validate(entityType string, payload map[string]any) error {
	def, ok := r.schemas[entityType]
	if !ok {
		return &ValidationError{EntityType: entityType, Detail: "no schema registered"}
	}

	data := def.Context().Encode(payload)
	if err := data.Err(); err != nil {
		return &ValidationError{EntityType: entityType, Detail: err.Error()}
	}

	unified := def.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{EntityType: entityType, Detail: cueerrors.Details(err, nil)}
	}
	return nil
}
