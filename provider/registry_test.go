package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (s *stubAdapter) Capabilities() Capabilities { return Capabilities{Payment3D: true} }
func (s *stubAdapter) Initialize(context.Context) (*Result, error) {
	return Pending("O1", nil), nil
}
func (s *stubAdapter) FormHTML(context.Context) (string, error) { return "<form></form>", nil }
func (s *stubAdapter) ProcessCallback(context.Context, map[string]string) (*Result, error) {
	return Approved("O1", "A1", "R1", ""), nil
}

func stubFactory(name string) Factory {
	return func(*Session) (Adapter, error) { return &stubAdapter{name: name}, nil }
}

func TestProviderRegistry_Register(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("nestpay", stubFactory("nestpay"), "isbank", "Halkbank")

	id, factory, err := registry.Resolve("nestpay")
	require.NoError(t, err)
	assert.Equal(t, "nestpay", id)
	assert.NotNil(t, factory)

	id, _, err = registry.Resolve("HALKBANK")
	require.NoError(t, err)
	assert.Equal(t, "nestpay", id, "aliases resolve to the shared adapter")
}

func TestProviderRegistry_Resolve_NotFound(t *testing.T) {
	registry := NewProviderRegistry()

	_, factory, err := registry.Resolve("non-existent")
	require.Error(t, err)
	assert.Nil(t, factory)
	assert.Equal(t, KindProviderUnsupported, KindOf(err))
	assert.Contains(t, err.Error(), "is not registered")
}

func TestProviderRegistry_DuplicatePanics(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("garanti", stubFactory("garanti"))

	assert.Panics(t, func() { registry.Register("garanti", stubFactory("garanti")) })

	registry.Register("a", stubFactory("a"), "shared")
	assert.Panics(t, func() { registry.Register("b", stubFactory("b"), "shared") })
}

func TestProviderRegistry_New(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("mock", stubFactory("mock"))

	adapter, err := registry.New(&Session{Terminal: &Terminal{Provider: "mock"}})
	require.NoError(t, err)
	assert.Equal(t, "mock", adapter.(*stubAdapter).name)

	_, err = registry.New(&Session{Terminal: &Terminal{Provider: "stripe"}})
	assert.Equal(t, KindProviderUnsupported, KindOf(err))

	_, err = registry.New(&Session{})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestProviderRegistry_GetProviderNames(t *testing.T) {
	registry := NewProviderRegistry()
	assert.Empty(t, registry.GetProviderNames())

	registry.Register("provider2", stubFactory("p2"))
	registry.Register("provider1", stubFactory("p1"), "alias1")

	assert.Equal(t, []string{"alias1", "provider1", "provider2"}, registry.GetProviderNames())
}
