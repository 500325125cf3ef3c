package models

import "errors"

// Error categories shared across the pipeline. Call sites wrap these with
// fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrConnection indicates the broker could not be reached or the
	// connection was lost. Recovered lazily on the next channel acquisition.
	ErrConnection = errors.New("broker connection failed")

	// ErrPublish indicates a message could not be handed to the broker. The
	// corresponding request must be treated as not yet enqueued.
	ErrPublish = errors.New("publish failed")

	// ErrDecode indicates a message body that is not a valid job. Such
	// messages are logged, acknowledged and skipped.
	ErrDecode = errors.New("message decode failed")

	// ErrExtraction indicates the content extractor failed for a job.
	ErrExtraction = errors.New("content extraction failed")

	// ErrPersistence indicates a storage write failed.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("not found")
)
