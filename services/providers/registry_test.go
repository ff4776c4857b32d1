package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name string
	cfg  ProviderConfig
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Execute(ctx context.Context, credential string, req *GenerateRequest) (string, error) {
	return "ok", nil
}

func stubFactory(cfg ProviderConfig) (Adapter, error) {
	return &stubAdapter{name: cfg.Name, cfg: cfg}, nil
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register("stub", stubFactory))
	assert.ErrorIs(t, registry.Register("stub", stubFactory), ErrProviderAlreadyRegistered)
	assert.Error(t, registry.Register("", stubFactory))
	assert.Error(t, registry.Register("nil", nil))

	adapter, err := registry.Build(ProviderConfig{Name: "stub", Model: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, "stub", adapter.Name())
	assert.Equal(t, "m-1", adapter.(*stubAdapter).cfg.Model)
}

func TestRegistry_BuildUnknown(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Build(ProviderConfig{Name: "missing"})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRegistry_BuildFactoryError(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("broken", func(ProviderConfig) (Adapter, error) {
		return nil, errors.New("missing model")
	}))

	_, err := registry.Build(ProviderConfig{Name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build provider broken")
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"replicate", "gemini", "openrouter"} {
		require.NoError(t, registry.Register(name, stubFactory))
	}

	assert.Equal(t, []string{"gemini", "openrouter", "replicate"}, registry.Names())
	assert.Equal(t, 3, registry.Count())
}
