package pipeline

import "fmt"

// FailureKind classifies a stage outcome that is policy rather than a fault.
// The orchestrator decides per kind whether to substitute a default, skip the
// stage, or stop the pipeline. Unexpected faults travel as plain errors.
type FailureKind string

const (
	// FailureGeocode means the geocoder could not resolve the coordinate.
	// The orchestrator substitutes the configured default city/state.
	FailureGeocode FailureKind = "geocode_unresolved"

	// FailureFormNotFound means discovery produced no usable candidates.
	// Submission cannot proceed, so the report stops at form_not_found.
	FailureFormNotFound FailureKind = "form_not_found"

	// FailureSubmission means the form subprocess exited non-zero or timed
	// out. Never retried: a second run could file a duplicate report.
	FailureSubmission FailureKind = "submission_failed"

	// FailurePost means the social provider rejected the post. Recorded on
	// the report but the pipeline still completes.
	FailurePost FailureKind = "post_failed"
)

// StageFailure is a typed stage outcome carrying the policy kind and a
// human-readable reason. Cause keeps the underlying error, when there is
// one, for fault classification.
type StageFailure struct {
	Kind   FailureKind
	Reason string
	Cause  error
}

func (f *StageFailure) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}
