package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/assembly/internal/model"
)

func TestNew_BindsCreateOperationsOnRegistration(t *testing.T) {
	rt := New(Options{DataDir: t.TempDir()})
	t.Cleanup(func() { rt.Close() })

	c, err := rt.Registry.Register(&model.Component{
		Index:    model.Index{Name: "panel"},
		Defaults: map[string]any{"x": 1},
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, c.New)
	require.NotNil(t, c.Start)

	inst, err := c.New(context.Background(), map[string]any{"x": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, inst.Config["x"])
}

func TestStart_RunsLifecycleThroughBoundOperation(t *testing.T) {
	rt := New(Options{DataDir: t.TempDir()})
	t.Cleanup(func() { rt.Close() })

	initialized := false
	c, err := rt.Registry.Register(&model.Component{
		Index: model.Index{Name: "svc"},
		Hooks: &model.Hooks{
			OnInit: func(context.Context, *model.Instance) error {
				initialized = true
				return nil
			},
		},
	}, nil)
	require.NoError(t, err)

	_, err = c.Start(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, initialized)
}
