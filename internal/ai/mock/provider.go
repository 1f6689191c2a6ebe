package mock

import (
	"context"
	"sync/atomic"

	"github.com/kiranshivaraju/testscout/internal/ai"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

// MockProvider satisfies models.AIProvider for testing.
type MockProvider struct {
	Name_        string
	Model_       string
	CompleteFunc func(ctx context.Context, messages []models.Message) (*models.Completion, error)

	calls atomic.Int32
}

func (m *MockProvider) Name() string  { return m.Name_ }
func (m *MockProvider) Model() string { return m.Model_ }

func (m *MockProvider) Complete(ctx context.Context, messages []models.Message) (*models.Completion, error) {
	m.calls.Add(1)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return &models.Completion{Content: "{}", Model: m.Model_}, nil
}

// Calls returns how many times Complete was called.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

// NewMockProvider returns a MockProvider that always replies with content.
func NewMockProvider(content string) *MockProvider {
	return &MockProvider{
		Name_:  "mock",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ []models.Message) (*models.Completion, error) {
			return &models.Completion{Content: content, Model: "mock-v1", InputTokens: 100, OutputTokens: 50}, nil
		},
	}
}

// NewSequenceProvider returns a MockProvider that returns errs[i] on call i
// and content once errs is exhausted.
func NewSequenceProvider(content string, errs ...error) *MockProvider {
	m := &MockProvider{Name_: "mock-sequence", Model_: "mock-v1"}
	m.CompleteFunc = func(_ context.Context, _ []models.Message) (*models.Completion, error) {
		i := int(m.calls.Load()) - 1
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		return &models.Completion{Content: content, Model: "mock-v1"}, nil
	}
	return m
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_:  "mock-failing",
		Model_: "mock-v1",
		CompleteFunc: func(_ context.Context, _ []models.Message) (*models.Completion, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_:  "mock-timeout",
		Model_: "mock-v1",
		CompleteFunc: func(ctx context.Context, _ []models.Message) (*models.Completion, error) {
			<-ctx.Done()
			return nil, &models.ProviderError{Provider: "mock-timeout", Timeout: true, Err: ai.ErrInferenceTimeout}
		},
	}
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
