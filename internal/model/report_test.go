package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCategory_Exact(t *testing.T) {
	for _, c := range AllCategories() {
		assert.Equal(t, c, NormalizeCategory(string(c)))
	}
}

func TestNormalizeCategory_NoneVariants(t *testing.T) {
	for _, raw := range []string{"none", "None", "no issue", "Not Applicable", "n/a", "", "  "} {
		assert.Equal(t, CategoryNone, NormalizeCategory(raw), "raw=%q", raw)
	}
}

func TestNormalizeCategory_Containment(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
	}{
		{"Large Road Crack detected", CategoryRoadCrack},
		{"graffiti on wall", CategoryGraffiti},
		{"road crack", CategoryRoadCrack},
		{"Sidewalk", CategorySidewalkCrack},
		{"fallen tree blocking path", CategoryFallenTree},
		{"Trash", CategoryOverflowingTrash},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCategory(tt.raw), "raw=%q", tt.raw)
	}
}

func TestNormalizeCategory_UnrecognizedIsSpam(t *testing.T) {
	assert.Equal(t, CategoryNone, NormalizeCategory("cute dog"))
	assert.Equal(t, CategoryNone, NormalizeCategory("pizza"))
}

func TestReportStatus_Terminal(t *testing.T) {
	terminal := []ReportStatus{StatusRejected, StatusFormNotFound, StatusSubmissionFailed, StatusDone, StatusError}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status=%s", s)
	}
	nonTerminal := []ReportStatus{StatusReceived, StatusClassifying, StatusClassified, StatusDiscoveringForm, StatusFormFound, StatusSubmitting, StatusSubmitted, StatusAmplifying}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "status=%s", s)
	}
}

func TestAddress_Full(t *testing.T) {
	a := Address{Line: "123 Market St", City: "San Francisco", State: "CA", ZipCode: "94103"}
	assert.Equal(t, "123 Market St, San Francisco, CA 94103", a.Full())

	assert.Equal(t, "San Francisco, CA", Address{City: "San Francisco", State: "CA"}.Full())
	assert.Equal(t, "", Address{}.Full())
}

func TestReport_Summarize(t *testing.T) {
	now := time.Now().UTC()
	r := &Report{
		ID:        "REPORT-A3B5C7D9",
		Status:    StatusDone,
		CreatedAt: now,
		Classification: &Classification{
			Category:            CategoryRoadCrack,
			Confidence:          0.92,
			LocationDescription: "center of right lane",
			FormFields:          map[string]string{"requestType": "Pothole/Pavement Defect"},
		},
		Discovery:     &Discovery{URL: "https://sf.gov/report"},
		Submission:    &Submission{Success: true, TrackingNumber: "101002860550"},
		Amplification: &Amplification{Success: true, PostURL: "https://twitter.com/x/status/1"},
	}

	s := r.Summarize()
	assert.Equal(t, "REPORT-A3B5C7D9", s.TrackingID)
	assert.Equal(t, CategoryRoadCrack, s.IssueType)
	assert.InDelta(t, 0.92, s.Confidence, 0.001)
	assert.Equal(t, "https://sf.gov/report", s.ReportingURL)
	assert.Equal(t, "101002860550", s.TrackingNumber)
	assert.Equal(t, "https://twitter.com/x/status/1", s.SocialPostURL)
	assert.Equal(t, now, s.CreatedAt)
}

func TestReport_Summarize_Minimal(t *testing.T) {
	r := &Report{ID: "r1", Status: StatusRejected, Message: "not a civic issue"}
	s := r.Summarize()
	assert.Equal(t, CategoryNone, s.IssueType)
	assert.Empty(t, s.ReportingURL)
	assert.Empty(t, s.TrackingNumber)
}

func TestReport_JSONRoundTrip(t *testing.T) {
	r := Report{
		ID:       "r1",
		ImageRef: "uploads/abc.jpg",
		Latitude: 37.7749, Longitude: -122.4194,
		Classification: &Classification{Category: CategoryGraffiti, Confidence: 0.88, Description: "tags on wall"},
		Address:        &Address{Line: "1 Main St", City: "Oakland", State: "CA"},
		Submission:     &Submission{Success: true, TrackingNumber: "123456789012", Method: MethodAutomatedForm},
		Status:         StatusSubmitted,
		CreatedAt:      time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r, back)
}
