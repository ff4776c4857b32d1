package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/upb/imagegen-gateway/services/dispatcher"
	"github.com/upb/imagegen-gateway/services/editing"
	"github.com/upb/imagegen-gateway/services/providers"
)

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, images []providers.Image) (string, error) {
	args := m.Called(ctx, prompt, images)
	return args.String(0), args.Error(1)
}

// MockEditor is a mock implementation of Editor
type MockEditor struct {
	mock.Mock
}

func (m *MockEditor) Edit(ctx context.Context, req *editing.EditRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockEditor) Describe(ctx context.Context, img providers.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

func (m *MockEditor) Suggest(ctx context.Context, kind editing.SuggestionKind, img providers.Image, source *providers.Image) ([]string, error) {
	args := m.Called(ctx, kind, img, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockProviderAdmin is a mock implementation of ProviderAdmin
type MockProviderAdmin struct {
	mock.Mock
}

func (m *MockProviderAdmin) Status() []dispatcher.ProviderStatus {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]dispatcher.ProviderStatus)
}

func (m *MockProviderAdmin) Reset(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}
