package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/protocol"
	"github.com/ent0n29/mockinterview/internal/session"
)

// binaryAnswer is an answer that arrived as a raw binary frame.
type binaryAnswer struct {
	audio []byte
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.observeSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sessionID, inbound, outbound)
		cancel()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				// Flush what the connection loop already queued, e.g. the final
				// system_event after an end request.
				for {
					select {
					case msg := <-outbound:
						_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
						if conn.WriteJSON(msg) != nil {
							return
						}
					default:
						return
					}
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.observeWSMessage("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(s.cfg.MaxUploadBytes * 2)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
		return nil
	})

	go func() {
		<-ctx.Done()
		// Unblock ReadMessage once the connection loop is done.
		_ = conn.SetReadDeadline(time.Now())
	}()

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var parsed any
		switch msgType {
		case websocket.BinaryMessage:
			parsed = binaryAnswer{audio: data}
			s.observeWSMessage("inbound", protocol.TypeClientAnswerAudio)
		case websocket.TextMessage:
			parsed, err = protocol.ParseClientMessage(data)
			if err != nil {
				enqueue(outbound, errorEvent(sessionID, "invalid_client_message", err.Error()))
				continue
			}
			if t, ok := messageTypeOf(parsed); ok {
				s.observeWSMessage("inbound", t)
			}
		default:
			continue
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.observeSessionEvent("ws_disconnected")
}

// runConnection drives one session from websocket messages until the client
// disconnects or ends the session.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	logger := log.WithField("session_id", sessionID)

	if sess, err := s.sessions.Get(sessionID); err == nil {
		if q := sess.Interview.Current; q != "" {
			send(ctx, outbound, questionMessage(sessionID, q, sess))
		}
	}

	for {
		var msg any
		select {
		case <-ctx.Done():
			return
		case m, ok := <-inbound:
			if !ok {
				return
			}
			msg = m
		}

		switch m := msg.(type) {
		case protocol.ClientControl:
			if m.SessionID != sessionID {
				send(ctx, outbound, errorEvent(sessionID, "session_mismatch", "session_id does not match the connection"))
				continue
			}
			switch m.Action {
			case protocol.ActionNextQuestion:
				s.wsAsk(ctx, sessionID, outbound)
			case protocol.ActionRestart:
				if _, err := s.sessions.Restart(sessionID); err != nil {
					send(ctx, outbound, sessionErrorEvent(sessionID, err))
					continue
				}
				s.observeSessionEvent("restarted")
				send(ctx, outbound, systemEvent(sessionID, "restarted", ""))
			case protocol.ActionEnd:
				if _, err := s.sessions.End(sessionID); err != nil {
					send(ctx, outbound, sessionErrorEvent(sessionID, err))
					continue
				}
				s.observeSessionEvent("ended")
				send(ctx, outbound, systemEvent(sessionID, "ended", ""))
				return
			}
		case protocol.ClientAnswerAudio:
			if m.SessionID != sessionID {
				send(ctx, outbound, errorEvent(sessionID, "session_mismatch", "session_id does not match the connection"))
				continue
			}
			blob, err := base64.StdEncoding.DecodeString(m.AudioBase64)
			if err != nil {
				send(ctx, outbound, errorEvent(sessionID, "invalid_audio", "audio_base64 is not valid base64"))
				continue
			}
			s.wsAnswer(ctx, sessionID, blob, outbound)
		case binaryAnswer:
			s.wsAnswer(ctx, sessionID, m.audio, outbound)
		default:
			logger.Warnf("unexpected inbound message %T", msg)
		}
	}
}

func (s *Server) wsAsk(ctx context.Context, sessionID string, outbound chan<- any) {
	q, sess, err := s.ask(ctx, sessionID)
	if err != nil {
		send(ctx, outbound, sessionErrorEvent(sessionID, err))
		return
	}
	send(ctx, outbound, questionMessage(sessionID, q, sess))
}

func (s *Server) wsAnswer(ctx context.Context, sessionID string, blob []byte, outbound chan<- any) {
	if len(blob) == 0 {
		send(ctx, outbound, errorEvent(sessionID, "invalid_audio", "empty answer"))
		return
	}
	ev, sess, err := s.answer(ctx, sessionID, blob)
	if err != nil {
		send(ctx, outbound, sessionErrorEvent(sessionID, err))
		return
	}
	send(ctx, outbound, protocol.Evaluation{
		Type:           protocol.TypeEvaluation,
		SessionID:      sessionID,
		Index:          sess.Interview.Answered,
		Score:          ev.Score,
		Feedback:       ev.Feedback,
		FullTranscript: ev.FullTranscript,
	})

	if sess.Interview.State == interview.StateCompleted {
		s.observeSessionEvent("completed")
		send(ctx, outbound, protocol.InterviewComplete{
			Type:         protocol.TypeInterviewComplete,
			SessionID:    sessionID,
			Answered:     sess.Interview.Answered,
			AverageScore: sess.Interview.AverageScore,
			DurationMS:   sess.Interview.Duration.Milliseconds(),
		})
		return
	}
	s.wsAsk(ctx, sessionID, outbound)
}

func questionMessage(sessionID, text string, sess *session.Session) protocol.Question {
	return protocol.Question{
		Type:      protocol.TypeQuestion,
		SessionID: sessionID,
		Index:     sess.Interview.Asked,
		Total:     sess.Interview.MaxQuestions,
		Text:      text,
	}
}

func systemEvent(sessionID, code, detail string) protocol.SystemEvent {
	return protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      code,
		Detail:    detail,
	}
}

func errorEvent(sessionID, code, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "gateway",
		Retryable: false,
		Detail:    detail,
	}
}

func sessionErrorEvent(sessionID string, err error) protocol.ErrorEvent {
	_, code := sessionErrorStatus(err)
	ev := errorEvent(sessionID, code, err.Error())
	ev.Source = "session"
	ev.Retryable = errors.Is(err, interview.ErrRoundState)
	return ev
}

func send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

// enqueue never blocks the read loop; the message is dropped when the
// outbound queue is saturated.
func enqueue(outbound chan<- any, msg any) {
	select {
	case outbound <- msg:
	default:
	}
}

func (s *Server) observeWSMessage(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientAnswerAudio:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.Question:
		return m.Type, true
	case protocol.Evaluation:
		return m.Type, true
	case protocol.InterviewComplete:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
