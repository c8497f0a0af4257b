// Package model defines the report record threaded through the pipeline and
// its stage-level sub-records.
package model

import (
	"strings"
	"time"
)

// Category is the closed set of civic issue types the classifier may emit.
type Category string

const (
	CategoryRoadCrack           Category = "Road Crack"
	CategorySidewalkCrack       Category = "Sidewalk Crack"
	CategoryGraffiti            Category = "Graffiti"
	CategoryOverflowingTrash    Category = "Overflowing Trash"
	CategoryFadedStreetMarkings Category = "Faded Street Markings"
	CategoryBrokenStreetLight   Category = "Broken Street Light"
	CategoryFallenTree          Category = "Fallen Tree"
	CategoryNone                Category = "None"
)

// AllCategories returns every valid category including None.
func AllCategories() []Category {
	return []Category{
		CategoryRoadCrack,
		CategorySidewalkCrack,
		CategoryGraffiti,
		CategoryOverflowingTrash,
		CategoryFadedStreetMarkings,
		CategoryBrokenStreetLight,
		CategoryFallenTree,
		CategoryNone,
	}
}

// NormalizeCategory maps a free-form provider string onto the closed category
// set using substring containment in both directions. Anything that does not
// match becomes None — unrecognized labels are treated as spam, not as new
// categories.
func NormalizeCategory(raw string) Category {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "none", "no issue", "not applicable", "n/a", "":
		return CategoryNone
	}

	for _, c := range AllCategories() {
		if string(c) == trimmed {
			return c
		}
	}

	lower := strings.ToLower(trimmed)
	for _, c := range AllCategories() {
		if c == CategoryNone {
			continue
		}
		cl := strings.ToLower(string(c))
		if strings.Contains(lower, cl) || strings.Contains(cl, lower) {
			return c
		}
	}
	return CategoryNone
}

// ReportStatus is the orchestrator's state machine value.
type ReportStatus string

const (
	StatusReceived         ReportStatus = "received"
	StatusClassifying      ReportStatus = "classifying"
	StatusRejected         ReportStatus = "rejected"
	StatusClassified       ReportStatus = "classified"
	StatusDiscoveringForm  ReportStatus = "discovering_form"
	StatusFormNotFound     ReportStatus = "form_not_found"
	StatusFormFound        ReportStatus = "form_found"
	StatusSubmitting       ReportStatus = "submitting"
	StatusSubmissionFailed ReportStatus = "submission_failed"
	StatusSubmitted        ReportStatus = "submitted"
	StatusAmplifying       ReportStatus = "amplifying"
	StatusDone             ReportStatus = "done"
	StatusError            ReportStatus = "error"
)

// Terminal reports whether no further stage will run for a report in this state.
func (s ReportStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusFormNotFound, StatusSubmissionFailed, StatusDone, StatusError:
		return true
	}
	return false
}

// SubmissionMethod identifies how a report reached the city system.
type SubmissionMethod string

const (
	MethodAPI               SubmissionMethod = "api"
	MethodAutomatedForm     SubmissionMethod = "automated_form"
	MethodFallbackGenerated SubmissionMethod = "fallback_generated"
)

// Classification is the vision stage output. Produced once, never mutated.
type Classification struct {
	Category            Category          `json:"category"`
	Confidence          float64           `json:"confidence"`
	Description         string            `json:"description"`
	LocationDescription string            `json:"location_description"`
	FormFields          map[string]string `json:"form_fields,omitempty"`
}

// Address is a structured street address. Either the geocoder or the
// submission stage may produce it; the submission stage's value wins.
type Address struct {
	Line    string `json:"line"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

// Full renders the address as a single display line.
func (a Address) Full() string {
	parts := make([]string, 0, 3)
	if a.Line != "" {
		parts = append(parts, a.Line)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	s := strings.Join(parts, ", ")
	if a.ZipCode != "" {
		s += " " + a.ZipCode
	}
	return s
}

// FormCandidate is one ranked search result from form discovery.
type FormCandidate struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet,omitempty"`
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
}

// Discovery records the form-discovery stage outcome.
type Discovery struct {
	URL        string          `json:"url"`
	Query      string          `json:"query"`
	Candidates []FormCandidate `json:"candidates,omitempty"`
}

// Submission records the form-submission stage outcome. Success and
// tracking-number extraction are independent: a submitted form whose
// confirmation output could not be parsed has Success=true and an empty
// TrackingNumber.
type Submission struct {
	Success               bool             `json:"success"`
	TrackingNumber        string           `json:"tracking_number,omitempty"`
	ConfirmedAddress      string           `json:"confirmed_address,omitempty"`
	Method                SubmissionMethod `json:"method"`
	Department            string           `json:"department,omitempty"`
	EstimatedResponseTime string           `json:"estimated_response_time,omitempty"`
	RawOutput             string           `json:"raw_output,omitempty"`
}

// StyleHints are engagement-analytics parameters used to compose social posts.
type StyleHints struct {
	OptimalLength int      `json:"optimal_length"`
	Hashtags      []string `json:"hashtags"`
	EmojiUsage    string   `json:"emoji_usage"` // "high", "moderate", "low"
	CTAStyle      string   `json:"cta_style"`   // "urgent", "direct", "community"
	PostsAnalyzed int      `json:"posts_analyzed"`
}

// Amplification records the social-posting stage outcome.
type Amplification struct {
	Success  bool       `json:"success"`
	PostURL  string     `json:"post_url,omitempty"`
	PostText string     `json:"post_text,omitempty"`
	Insights StyleHints `json:"insights"`
}

// Report is the per-request record mutated in place, stage by stage, by the
// orchestrator. Stages themselves return partial results and never see the
// whole record.
type Report struct {
	ID             string          `json:"id"`
	ImageRef       string          `json:"image_ref"`
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	Classification *Classification `json:"classification,omitempty"`
	Address        *Address        `json:"address,omitempty"`
	Discovery      *Discovery      `json:"discovery,omitempty"`
	Submission     *Submission     `json:"submission,omitempty"`
	Amplification  *Amplification  `json:"amplification,omitempty"`
	District       string          `json:"district,omitempty"`
	Status         ReportStatus    `json:"status"`
	Message        string          `json:"message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summary is the caller-facing result record. Field names match the intake
// API's JSON contract.
type Summary struct {
	TrackingID          string            `json:"trackingId"`
	Status              ReportStatus      `json:"status"`
	Message             string            `json:"message,omitempty"`
	IssueType           Category          `json:"issueType"`
	Confidence          float64           `json:"confidence"`
	ReportingURL        string            `json:"reportingUrl,omitempty"`
	LocationDescription string            `json:"locationDescription,omitempty"`
	FormFields          map[string]string `json:"formFields,omitempty"`
	TrackingNumber      string            `json:"trackingNumber,omitempty"`
	SocialPostURL       string            `json:"socialPostUrl,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// Summarize projects the internal record onto the caller-facing field set.
func (r *Report) Summarize() Summary {
	s := Summary{
		TrackingID: r.ID,
		Status:     r.Status,
		Message:    r.Message,
		IssueType:  CategoryNone,
		CreatedAt:  r.CreatedAt,
	}
	if r.Classification != nil {
		s.IssueType = r.Classification.Category
		s.Confidence = r.Classification.Confidence
		s.LocationDescription = r.Classification.LocationDescription
		s.FormFields = r.Classification.FormFields
	}
	if r.Discovery != nil {
		s.ReportingURL = r.Discovery.URL
	}
	if r.Submission != nil {
		s.TrackingNumber = r.Submission.TrackingNumber
	}
	if r.Amplification != nil {
		s.SocialPostURL = r.Amplification.PostURL
	}
	return s
}
