package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAnswerAudio MessageType = "client_answer_audio"
	TypeClientControl     MessageType = "client_control"
	TypeQuestion          MessageType = "question"
	TypeEvaluation        MessageType = "evaluation"
	TypeInterviewComplete MessageType = "interview_complete"
	TypeSystemEvent       MessageType = "system_event"
	TypeErrorEvent        MessageType = "error_event"
)

const (
	ActionNextQuestion = "next_question"
	ActionRestart      = "restart"
	ActionEnd          = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientAnswerAudio carries one complete recorded answer. Clients may instead
// send the raw encoded bytes as a single binary frame.
type ClientAnswerAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	AudioBase64 string      `json:"audio_base64"`
	TSMs        int64       `json:"ts_ms,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type Question struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Index     int         `json:"index"`
	Total     int         `json:"total"`
	Text      string      `json:"text"`
}

type Evaluation struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	Index          int         `json:"index"`
	Score          float64     `json:"score"`
	Feedback       string      `json:"feedback"`
	FullTranscript string      `json:"full_transcript,omitempty"`
}

type InterviewComplete struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Answered     int         `json:"answered"`
	AverageScore float64     `json:"average_score"`
	DurationMS   int64       `json:"duration_ms"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAnswerAudio:
		var msg ClientAnswerAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.AudioBase64 == "" {
			return nil, errors.New("invalid client_answer_audio")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionNextQuestion, ActionRestart, ActionEnd:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
