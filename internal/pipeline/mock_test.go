package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/civicsight/civicsight/pkg/anthropic"
	"github.com/civicsight/civicsight/pkg/engage"
	"github.com/civicsight/civicsight/pkg/geocode"
	"github.com/civicsight/civicsight/pkg/serp"
	"github.com/civicsight/civicsight/pkg/social"
)

// --- Anthropic Mock ---

type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// textResponse wraps a raw provider string as a message response.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// --- Geocode Mock ---

type mockGeoClient struct {
	mock.Mock
}

func (m *mockGeoClient) Reverse(ctx context.Context, lat, lon float64) (*geocode.Result, error) {
	args := m.Called(ctx, lat, lon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// --- SERP Mock ---

type mockSerpClient struct {
	mock.Mock
}

func (m *mockSerpClient) Trigger(ctx context.Context, query string) (string, error) {
	args := m.Called(ctx, query)
	return args.String(0), args.Error(1)
}

func (m *mockSerpClient) Snapshot(ctx context.Context, snapshotID string) ([]serp.Result, error) {
	args := m.Called(ctx, snapshotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]serp.Result), args.Error(1)
}

func (m *mockSerpClient) Search(ctx context.Context, query string) ([]serp.Result, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]serp.Result), args.Error(1)
}

// --- Engagement Mock ---

type mockEngageClient struct {
	mock.Mock
}

func (m *mockEngageClient) TopPosts(ctx context.Context, city, topic string, limit int) ([]engage.Post, error) {
	args := m.Called(ctx, city, topic, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]engage.Post), args.Error(1)
}

// --- Social Mock ---

type mockSocialClient struct {
	mock.Mock
}

func (m *mockSocialClient) UploadMedia(ctx context.Context, data []byte, filename string) (string, error) {
	args := m.Called(ctx, data, filename)
	return args.String(0), args.Error(1)
}

func (m *mockSocialClient) CreatePost(ctx context.Context, text string, mediaIDs []string) (*social.Post, error) {
	args := m.Called(ctx, text, mediaIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*social.Post), args.Error(1)
}
