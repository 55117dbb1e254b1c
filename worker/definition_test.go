package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
)

func noopHook(context.Context, *Context) error { return nil }

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		missing string
	}{
		{
			name:    "missing type name",
			def:     &Definition{PerformWork: noopHook},
			missing: "type name",
		},
		{
			name:    "missing perform work",
			def:     &Definition{Type: "planner"},
			missing: "PerformWork operation",
		},
		{
			name: "complete",
			def:  &Definition{Type: "planner", PerformWork: noopHook},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerr := tt.def.Validate()
			if tt.missing == "" {
				require.Nil(t, cerr)
				return
			}
			require.NotNil(t, cerr)
			require.Equal(t, tt.missing, cerr.Missing)
			require.Contains(t, cerr.Error(), tt.missing)
		})
	}
}

func TestDefinition_ValidateConfig(t *testing.T) {
	def := &Definition{
		Type:        "writer",
		PerformWork: noopHook,
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"style": map[string]any{"type": "string"},
			},
			"required": []any{"style"},
		},
	}

	require.Error(t, def.ValidateConfig(map[string]any{}))
	require.Error(t, def.ValidateConfig(map[string]any{"style": 42}))
	require.NoError(t, def.ValidateConfig(map[string]any{"style": "formal"}))

	unconstrained := &Definition{Type: "planner", PerformWork: noopHook}
	require.NoError(t, unconstrained.ValidateConfig(map[string]any{"anything": true}))
}

func TestDefinition_ConfigSchemaFromStruct(t *testing.T) {
	type writerConfig struct {
		Topic string `json:"topic"`
		Tone  string `json:"tone,omitempty"`
	}

	def := &Definition{
		Type:         "writer",
		PerformWork:  noopHook,
		ConfigSchema: util.CreateSchema(writerConfig{}),
	}

	err := def.ValidateConfig(map[string]any{"tone": "formal"})
	require.Error(t, err, "topic has no omitempty, so it is required")

	require.NoError(t, def.ValidateConfig(map[string]any{"topic": "grid stability", "tone": "formal"}))
	require.Error(t, def.ValidateConfig(map[string]any{"topic": 42}))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(&Definition{Type: "planner", PerformWork: noopHook}))
	require.NoError(t, reg.Register(&Definition{Type: "writer", PerformWork: noopHook}))

	err := reg.Register(&Definition{Type: "planner", PerformWork: noopHook})
	require.Error(t, err, "duplicate type must be rejected")

	var cerr *core.ContractError
	err = reg.Register(&Definition{Type: "broken"})
	require.ErrorAs(t, err, &cerr)

	def, err := reg.Get("planner")
	require.NoError(t, err)
	require.Equal(t, "planner", def.Type)

	_, err = reg.Get("unknown")
	var notFound *core.NotFoundError
	require.ErrorAs(t, err, &notFound)

	require.Equal(t, []string{"planner", "writer"}, reg.Types())
}
