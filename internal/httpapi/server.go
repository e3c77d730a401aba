package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/policy"
	"github.com/ent0n29/mockinterview/internal/report"
	"github.com/ent0n29/mockinterview/internal/resume"
	"github.com/ent0n29/mockinterview/internal/session"
)

// Engine is the inference surface the server drives. *interview.Engine
// implements it.
type Engine interface {
	interview.Interviewer
	Available() bool
	ActiveBackend() string
	ProbeError() error
}

// Components names the fallback parts that were loaded, for status reporting.
type Components struct {
	TextModel   string
	Transcriber string
}

type Server struct {
	cfg        config.Config
	sessions   *session.Manager
	engine     Engine
	metrics    *observability.Metrics
	components Components
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, engine Engine, metrics *observability.Metrics, components Components) *Server {
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		engine:     engine,
		metrics:    metrics,
		components: components,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser connections are only accepted from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/interview/session", s.handleCreateSession)
	r.Get("/v1/interview/session/ws", s.handleSessionWS)
	r.Get("/v1/interview/session/{id}", s.handleGetSession)
	r.Post("/v1/interview/session/{id}/question", s.handleNextQuestion)
	r.Post("/v1/interview/session/{id}/answer", s.handleAnswer)
	r.Post("/v1/interview/session/{id}/restart", s.handleRestartSession)
	r.Post("/v1/interview/session/{id}/end", s.handleEndSession)
	r.Get("/v1/interview/session/{id}/report.pdf", s.handleReport)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleReady is always ready: an unavailable primary model only means the
// fallback path serves every request.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"primary_available": s.engine.Available(),
		"active_backend":    s.engine.ActiveBackend(),
		"text_model":        s.components.TextModel,
		"transcriber":       s.components.Transcriber,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"operations":   []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.LatencySnapshot())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	req, err := s.readCreateRequest(r)
	switch {
	case errors.Is(err, resume.ErrMalformed):
		respondError(w, http.StatusUnprocessableEntity, "resume_unreadable", resume.ErrMalformed.Error())
		return
	case errors.Is(err, resume.ErrNoText):
		respondError(w, http.StatusUnprocessableEntity, "resume_unreadable", resume.ErrNoText.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	redacted := false
	if s.cfg.RedactResumePII {
		req.ResumeText, redacted = policy.RedactPII(req.ResumeText)
	}

	sess := s.sessions.Create(strings.TrimSpace(req.UserID), req.ResumeText)
	s.observeSessionEvent("created")
	log.WithField("session_id", sess.ID).
		WithField("resume_chars", sess.ResumeChars).
		WithField("pii_redacted", redacted).
		Info("interview session created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		Status:           sess.Status,
		ResumeChars:      sess.ResumeChars,
		MaxQuestions:     sess.Interview.MaxQuestions,
		PrimaryAvailable: s.engine.Available(),
		StartedAt:        sess.StartedAt,
		InactivityTTLMS:  s.sessions.InactivityTimeout().Milliseconds(),
	})
}

// readCreateRequest accepts a multipart PDF upload under "resume" or a JSON
// body carrying already extracted text.
func (s *Server) readCreateRequest(r *http.Request) (session.CreateRequest, error) {
	var req session.CreateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			return req, err
		}
		file, _, err := r.FormFile("resume")
		if err != nil {
			return req, errors.New("multipart field \"resume\" is required")
		}
		defer file.Close()
		blob, err := io.ReadAll(file)
		if err != nil {
			return req, err
		}
		text, err := resume.ExtractBytes(blob)
		if err != nil {
			return req, err
		}
		req.UserID = r.FormValue("user_id")
		req.ResumeText = text
		return req, nil
	}

	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			return req, errors.New("resume is required")
		}
		return req, err
	}
	req.ResumeText = strings.TrimSpace(req.ResumeText)
	if req.ResumeText == "" {
		return req, errors.New("resume_text is required")
	}
	return req, nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type questionResponse struct {
	Question string           `json:"question"`
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	Session  *session.Session `json:"session"`
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	q, sess, err := s.ask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, questionResponse{
		Question: q,
		Index:    sess.Interview.Asked,
		Total:    sess.Interview.MaxQuestions,
		Session:  sess,
	})
}

type answerResponse struct {
	Evaluation   interview.Evaluation `json:"evaluation"`
	Complete     bool                 `json:"complete"`
	NextQuestion string               `json:"next_question,omitempty"`
	Session      *session.Session     `json:"session"`
}

// handleAnswer evaluates the uploaded answer and, unless the round is over,
// generates the next question in the same request.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	blob, err := readAnswerAudio(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_audio", err.Error())
		return
	}

	ev, sess, err := s.answer(r.Context(), id, blob)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	out := answerResponse{Evaluation: ev, Session: sess}
	if sess.Interview.State == interview.StateCompleted {
		out.Complete = true
		s.observeSessionEvent("completed")
		respondJSON(w, http.StatusOK, out)
		return
	}

	next, sess, err := s.ask(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	out.NextQuestion = next
	out.Session = sess
	respondJSON(w, http.StatusOK, out)
}

func readAnswerAudio(r *http.Request) ([]byte, error) {
	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			return nil, errors.New("multipart field \"audio\" is required")
		}
		defer file.Close()
		src = file
	}
	if src == nil {
		return nil, errEmptyBody
	}
	blob, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, errEmptyBody
	}
	return blob, nil
}

func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Restart(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.observeSessionEvent("restarted")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	s.observeSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	blob, err := report.Render(sess.ID, sess.Interview)
	if err != nil {
		log.WithError(err).WithField("session_id", sess.ID).Error("render interview report")
		respondError(w, http.StatusInternalServerError, "report_failed", "could not render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="interview-`+sess.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (s *Server) ask(ctx context.Context, sessionID string) (string, *session.Session, error) {
	started := time.Now()
	q, sess, err := s.sessions.Ask(ctx, sessionID, s.engine)
	if err == nil && s.metrics != nil {
		s.metrics.ObserveQuestion(time.Since(started))
	}
	return q, sess, err
}

func (s *Server) answer(ctx context.Context, sessionID string, blob []byte) (interview.Evaluation, *session.Session, error) {
	return s.sessions.Answer(ctx, sessionID, s.engine, blob)
}

func (s *Server) observeSessionEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues(event).Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondSessionError(w http.ResponseWriter, err error) {
	status, code := sessionErrorStatus(err)
	respondError(w, status, code, err.Error())
}

func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrEnded):
		return http.StatusGone, "session_ended"
	case errors.Is(err, interview.ErrCompleted):
		return http.StatusConflict, "interview_completed"
	case errors.Is(err, interview.ErrRoundState):
		return http.StatusConflict, "invalid_state"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
