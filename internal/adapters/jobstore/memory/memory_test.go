package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/models"
	"clipforge/internal/ports"
)

func TestStore_Contract(t *testing.T) {
	ports.RunJobStoreContract(t, New())
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	job := models.NewJob("j1", models.RenderRequest{Caption: "a"}, time.Now())
	job.Composition = &models.CompositionDescriptor{BoundInputs: map[string]any{"caption": "a"}}
	require.NoError(t, s.Create(ctx, job))

	job.Composition.BoundInputs["caption"] = "mutated"
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Composition.BoundInputs["caption"])

	got.Composition.BoundInputs["caption"] = "again"
	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "a", again.Composition.BoundInputs["caption"])
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "x")
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
