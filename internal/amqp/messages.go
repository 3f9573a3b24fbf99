package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeedbackRequestMessage announces a persisted feedback job. It carries only
// identifiers; the worker loads the job and its report from the database.
type FeedbackRequestMessage struct {
	FeedbackID int64     `json:"feedback_id"`
	AnalysisID string    `json:"analysis_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFeedbackRequestMessage creates a message stamped with the current time.
func NewFeedbackRequestMessage(feedbackID int64, analysisID string) *FeedbackRequestMessage {
	return &FeedbackRequestMessage{
		FeedbackID: feedbackID,
		AnalysisID: analysisID,
		Timestamp:  time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *FeedbackRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FeedbackRequestMessageFromJSON decodes a message and rejects ones without a job ID.
func FeedbackRequestMessageFromJSON(data []byte) (*FeedbackRequestMessage, error) {
	var msg FeedbackRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.FeedbackID <= 0 {
		return nil, fmt.Errorf("invalid feedback id %d", msg.FeedbackID)
	}
	return &msg, nil
}
