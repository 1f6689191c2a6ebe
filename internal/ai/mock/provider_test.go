package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/testscout/internal/ai"
	"github.com/kiranshivaraju/testscout/internal/ai/mock"
	"github.com/kiranshivaraju/testscout/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessages() []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: "system"},
		{Role: models.RoleUser, Content: "bug"},
	}
}

func TestNewMockProvider(t *testing.T) {
	p := mock.NewMockProvider(`{"summary":"ok"}`)
	assert.Equal(t, "mock", p.Name())
	assert.Equal(t, "mock-v1", p.Model())

	c, err := p.Complete(context.Background(), sampleMessages())
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, c.Content)
	assert.Equal(t, 1, p.Calls())
}

func TestMockProvider_CustomFunc(t *testing.T) {
	p := &mock.MockProvider{
		Name_: "custom",
		CompleteFunc: func(_ context.Context, messages []models.Message) (*models.Completion, error) {
			return &models.Completion{Content: messages[1].Content}, nil
		},
	}
	c, err := p.Complete(context.Background(), sampleMessages())
	require.NoError(t, err)
	assert.Equal(t, "bug", c.Content)
}

func TestMockProvider_NilFuncReturnsEmptyObject(t *testing.T) {
	p := &mock.MockProvider{Name_: "empty"}
	c, err := p.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", c.Content)
}

func TestNewFailingProvider(t *testing.T) {
	want := errors.New("connection refused")
	p := mock.NewFailingProvider(want)
	assert.Equal(t, "mock-failing", p.Name())

	_, err := p.Complete(context.Background(), sampleMessages())
	assert.ErrorIs(t, err, want)
}

func TestNewSequenceProvider(t *testing.T) {
	first := errors.New("first")
	p := mock.NewSequenceProvider("done", first)

	_, err := p.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, first)

	c, err := p.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "done", c.Content)
	assert.Equal(t, 2, p.Calls())
}

func TestNewTimeoutProvider(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Complete(ctx, sampleMessages())
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
	assert.Less(t, time.Since(start), time.Second)

	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Transient())
}
