package toolset

import "errors"

var (
	// ErrToolsetNotFound means the referenced toolset name has no stored
	// record. Never retried automatically.
	ErrToolsetNotFound = errors.New("toolset not found")

	// ErrEvaluationInProgress means the toolset already has a processing
	// evaluation session. Callers should poll status instead of retrying
	// blindly.
	ErrEvaluationInProgress = errors.New("evaluation already in progress")
)

// ValidationError reports a malformed request payload. It is raised before
// the registry or any model is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}
