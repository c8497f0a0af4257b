package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/civicsight/civicsight/internal/model"
)

const potholeJSON = `{
	"category": "Road Crack",
	"confidence": 0.92,
	"description": "Large pothole in the right lane with exposed aggregate.",
	"location_description": "Center of right lane",
	"form_fields": {"requestType": "Pothole/Pavement Defect"}
}`

func TestClassify_Pothole(t *testing.T) {
	ai := new(mockAIClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(potholeJSON), nil)

	c := NewClassifier(ai, "claude-haiku-4-5-20251001", 0.6)
	cls, err := c.Classify(context.Background(), []byte("img"), "image/jpeg", 37.7749, -122.4194)
	require.NoError(t, err)

	assert.Equal(t, model.CategoryRoadCrack, cls.Category)
	assert.Equal(t, 0.92, cls.Confidence)
	assert.Equal(t, "Center of right lane", cls.LocationDescription)
	assert.Equal(t, "Pothole/Pavement Defect", cls.FormFields["requestType"])
}

func TestClassify_LowConfidenceForcedToNone(t *testing.T) {
	ai := new(mockAIClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`{"category": "Graffiti", "confidence": 0.3, "description": "Possible tag on wall."}`,
	), nil)

	c := NewClassifier(ai, "claude-haiku-4-5-20251001", 0.6)
	cls, err := c.Classify(context.Background(), []byte("img"), "image/jpeg", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, model.CategoryNone, cls.Category)
	assert.Equal(t, 0.0, cls.Confidence)
	assert.Contains(t, cls.Description, "Low confidence detection.")
	assert.Nil(t, cls.FormFields)
}

func TestClassify_ThresholdBoundary(t *testing.T) {
	ai := new(mockAIClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(
		`{"category": "Fallen Tree", "confidence": 0.6, "description": "Tree across sidewalk."}`,
	), nil)

	c := NewClassifier(ai, "claude-haiku-4-5-20251001", 0.6)
	cls, err := c.Classify(context.Background(), []byte("img"), "image/jpeg", 0, 0)
	require.NoError(t, err)

	// Exactly at the threshold passes; only strictly-below rejects.
	assert.Equal(t, model.CategoryFallenTree, cls.Category)
	assert.Equal(t, 0.6, cls.Confidence)
}

func TestClassify_ProviderErrorIsFatal(t *testing.T) {
	ai := new(mockAIClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	c := NewClassifier(ai, "claude-haiku-4-5-20251001", 0.6)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg", 0, 0)
	assert.Error(t, err)
}

func TestClassify_MalformedJSON(t *testing.T) {
	ai := new(mockAIClient)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("I could not tell"), nil)

	c := NewClassifier(ai, "claude-haiku-4-5-20251001", 0.6)
	_, err := c.Classify(context.Background(), []byte("img"), "image/jpeg", 0, 0)
	assert.Error(t, err)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCategory model.Category
		wantConf     float64
	}{
		{
			name:         "fenced json",
			text:         "```json\n{\"category\": \"Graffiti\", \"confidence\": 0.95}\n```",
			wantCategory: model.CategoryGraffiti,
			wantConf:     0.95,
		},
		{
			name:         "near-miss category normalized",
			text:         `{"category": "road crack detected", "confidence": 0.8}`,
			wantCategory: model.CategoryRoadCrack,
			wantConf:     0.8,
		},
		{
			name:         "unrecognized category is spam",
			text:         `{"category": "Cute Dog", "confidence": 0.99}`,
			wantCategory: model.CategoryNone,
			wantConf:     0.99,
		},
		{
			name:         "confidence clamped",
			text:         `{"category": "Graffiti", "confidence": 1.7}`,
			wantCategory: model.CategoryGraffiti,
			wantConf:     1.0,
		},
		{
			name:         "prose around object",
			text:         `Here is my analysis: {"category": "None", "confidence": 0.0, "description": "Indoor scene."} Hope that helps.`,
			wantCategory: model.CategoryNone,
			wantConf:     0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := parseClassification(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, cls.Category)
			assert.Equal(t, tt.wantConf, cls.Confidence)
		})
	}
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON(`text before {"a":1} text after`))
	assert.Equal(t, "not json", cleanJSON("  not json  "))
}
