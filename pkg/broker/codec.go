package broker

import (
	"encoding/json"
	"fmt"

	"github.com/xhad/siphon/internal/models"
)

// EncodeJob serializes a job message for the wire.
func EncodeJob(job models.JobMessage) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal job: %v", models.ErrPublish, err)
	}
	return body, nil
}

// DecodeJob parses a wire payload into a job message. Payloads missing
// an id or url are rejected so downstream lookups never run on junk.
func DecodeJob(body []byte) (models.JobMessage, error) {
	var job models.JobMessage
	if err := json.Unmarshal(body, &job); err != nil {
		return models.JobMessage{}, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	if job.ID == "" {
		return models.JobMessage{}, fmt.Errorf("%w: missing id", models.ErrDecode)
	}
	if job.URL == "" {
		return models.JobMessage{}, fmt.Errorf("%w: missing url", models.ErrDecode)
	}
	return job, nil
}
