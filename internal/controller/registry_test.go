package controller_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cogd/internal/controller"
	"github.com/roach88/cogd/internal/model"
)

func TestRegistryConstructsOnce(t *testing.T) {
	reg := newRegistry(t)

	const callers = 8
	got := make([]*controller.Controller[model.Wiki, *model.Wiki], callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = controller.MustGet[model.Wiki](reg)
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, got[0], got[i])
	}

	_, err := controller.Get[model.Guild](reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Guild", "Wiki"}, reg.Names())
}

func TestRegistryClose(t *testing.T) {
	reg := newRegistry(t)
	_ = controller.MustGet[model.Wiki](reg)

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.True(t, reg.Client().Closed())
	assert.Empty(t, reg.Names())

	_, err := controller.Get[model.Wiki](reg)
	assert.ErrorIs(t, err, controller.ErrStoreUnavailable)
}

func TestSchemaValidate(t *testing.T) {
	s := &controller.Schema{Name: "Bad", Table: "bad"}
	assert.Error(t, s.Validate(), "no key")

	s = &controller.Schema{Name: "X", Table: "x", Key: []string{"id"}, Columns: []string{"id"},
		Relations: []controller.Relation{{Field: "owner", Target: "users", TargetKey: "id"}}}
	assert.Error(t, s.Validate(), "relation column not declared")

	s = &controller.Schema{Name: "X", Table: "x", Key: []string{"id"}, Columns: []string{"id", "owner"},
		Unique:    [][]string{{"owner"}},
		Relations: []controller.Relation{{Field: "owner", Target: "users", TargetKey: "id"}}}
	assert.NoError(t, s.Validate())
}
