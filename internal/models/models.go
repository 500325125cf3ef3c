package models

import "time"

type ExtractionRequest struct {
	ID                  string
	UserSessionID       string
	URL                 string
	SpecialInstructions string
	IsCompleted         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type ExtractionResult struct {
	ID                  string
	ExtractionRequestID string
	Title               string
	Content             string
	ContentType         string
	SourceURL           string
	Author              string
	Language            string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Chunk struct {
	ID                 string
	ExtractionResultID string
	Content            string
	OrderNumber        int
	Embedding          []float32
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// JobMessage is the wire snapshot of an ExtractionRequest placed on the
// queue. The worker re-reads the authoritative row before processing.
type JobMessage struct {
	ID                  string `json:"id"`
	UserSessionID       string `json:"userSessionId"`
	URL                 string `json:"url"`
	SpecialInstructions string `json:"specialInstructions"`
}

func JobFromRequest(req ExtractionRequest) JobMessage {
	return JobMessage{
		ID:                  req.ID,
		UserSessionID:       req.UserSessionID,
		URL:                 req.URL,
		SpecialInstructions: req.SpecialInstructions,
	}
}
