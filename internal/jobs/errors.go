package jobs

import "errors"

// ErrJobNotFound is returned when a job id does not resolve to a stored job.
var ErrJobNotFound = errors.New("job not found")

// Error codes surfaced to API callers. These are request problems: no job
// is created when one of them is returned.
const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeCoverFileRequired   = "COVER_FILE_REQUIRED"
	CodeContentFileRequired = "CONTENT_FILE_REQUIRED"
	CodeFileNotFound        = "FILE_NOT_FOUND"
	CodeInvalidSpineWidth   = "INVALID_SPINE_WIDTH"
	CodeInvalidStatus       = "INVALID_STATUS"
)

// Error is a coded validation error for job creation and ingestion
// requests. Handlers map Code onto the response envelope.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsCoded extracts an *Error from err, if any.
func AsCoded(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}
