package session

import "time"

// CreateRequest defines the JSON payload for creating a session from text
// that was extracted elsewhere.
type CreateRequest struct {
	UserID     string `json:"user_id"`
	ResumeText string `json:"resume_text"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"`
	Status           Status    `json:"status"`
	ResumeChars      int       `json:"resume_chars"`
	MaxQuestions     int       `json:"max_questions"`
	PrimaryAvailable bool      `json:"primary_available"`
	StartedAt        time.Time `json:"started_at"`
	InactivityTTLMS  int64     `json:"inactivity_ttl_ms"`
}
