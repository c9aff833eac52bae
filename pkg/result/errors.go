package result

import "errors"

// ErrAlreadyFinalized is returned when a draft is finalized twice.
var ErrAlreadyFinalized = errors.New("draft already finalized")

// ValidationError reports a broken result invariant. Field names the offending
// wire field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ErrorCode is persisted on the failed job.
func (e *ValidationError) ErrorCode() string { return "result.validation_failed" }
