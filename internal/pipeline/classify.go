package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/civicsight/civicsight/internal/model"
	"github.com/civicsight/civicsight/internal/resilience"
	"github.com/civicsight/civicsight/pkg/anthropic"
)

const classifySystemPrompt = `You are a civic infrastructure damage detector for a city reporting system. You classify street-level photos into exactly one category and fill the matching report form fields.

Categories: "Road Crack" (potholes, pavement defects, shifted plates, manhole covers), "Sidewalk Crack" (sidewalk or curb damage, lifted or collapsed surfaces), "Graffiti" (unauthorized paint, tags, illegal postings), "Overflowing Trash" (full or spilling public receptacles), "Faded Street Markings" (worn crosswalks, lane lines), "Broken Street Light" (damaged or dark street lighting), "Fallen Tree" (fallen trees, hanging limbs, root damage), "None".

Return "None" for indoor scenes, personal items, people, pets, nature without infrastructure, or undamaged infrastructure.

Respond with ONLY a valid JSON object:
{"category": "<category>", "confidence": <0.0 for None, 0.6-1.0 otherwise>, "description": "<detailed damage description for the civic report>", "location_description": "<where in the scene, e.g. 'center of right lane'>", "form_fields": {<string key/value form selections, e.g. "requestType": "Pothole/Pavement Defect">}}`

const classifyUserPrompt = `Analyze this photo taken at coordinates (%.6f, %.6f). Identify any civic infrastructure damage.`

// Classifier is the vision classification stage. It has no deterministic
// substitute: a provider failure is fatal for the report, and the circuit
// breaker keeps a down provider from being hammered once per report.
type Classifier struct {
	ai        anthropic.Client
	model     string
	threshold float64
	breaker   *resilience.CircuitBreaker
}

// NewClassifier creates the classification stage. Threshold is the minimum
// confidence below which a positive classification is forced to None.
func NewClassifier(ai anthropic.Client, aiModel string, threshold float64) *Classifier {
	return &Classifier{
		ai:        ai,
		model:     aiModel,
		threshold: threshold,
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
}

// Classify sends the photo to the vision provider and normalizes the result.
// Low-confidence positives are rejected to None: a false civic report costs
// more than a missed one.
func (c *Classifier) Classify(ctx context.Context, image []byte, mediaType string, lat, lon float64) (*model.Classification, error) {
	prompt := fmt.Sprintf(classifyUserPrompt, lat, lon)
	req := anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    anthropic.BuildCachedSystemBlocks(classifySystemPrompt),
		Messages: []anthropic.Message{
			anthropic.NewImageMessage(mediaType, image, prompt),
		},
	}

	resp, err := resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.ai.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: vision provider")
	}
	resp.Usage.LogCost(c.model, "classify")

	cls, err := parseClassification(resp.Text())
	if err != nil {
		return nil, err
	}

	if cls.Category != model.CategoryNone && cls.Confidence < c.threshold {
		zap.L().Info("classification below confidence threshold, rejecting",
			zap.String("category", string(cls.Category)),
			zap.Float64("confidence", cls.Confidence),
			zap.Float64("threshold", c.threshold),
		)
		cls.Description = "Low confidence detection. " + cls.Description
		cls.Category = model.CategoryNone
		cls.Confidence = 0.0
		cls.FormFields = nil
	}

	return cls, nil
}

func parseClassification(text string) (*model.Classification, error) {
	text = cleanJSON(text)

	var raw struct {
		Category            string            `json:"category"`
		Confidence          float64           `json:"confidence"`
		Description         string            `json:"description"`
		LocationDescription string            `json:"location_description"`
		FormFields          map[string]string `json:"form_fields"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "classify: parse provider response")
	}

	category := model.NormalizeCategory(raw.Category)
	if category == model.CategoryNone && raw.Category != string(model.CategoryNone) {
		zap.L().Warn("unrecognized category treated as spam",
			zap.String("raw_category", raw.Category),
		)
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	cls := &model.Classification{
		Category:            category,
		Confidence:          confidence,
		Description:         raw.Description,
		LocationDescription: raw.LocationDescription,
		FormFields:          raw.FormFields,
	}
	if cls.Description == "" {
		cls.Description = "Civic infrastructure issue detected"
	}
	if category == model.CategoryNone {
		cls.FormFields = nil
	}
	return cls, nil
}

// cleanJSON strips markdown fences and leading/trailing prose around the
// first JSON object in a provider response.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
