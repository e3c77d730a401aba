package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mockinterview/internal/audio"
	"github.com/ent0n29/mockinterview/internal/config"
	"github.com/ent0n29/mockinterview/internal/inference"
	"github.com/ent0n29/mockinterview/internal/interview"
	"github.com/ent0n29/mockinterview/internal/observability"
	"github.com/ent0n29/mockinterview/internal/protocol"
	"github.com/ent0n29/mockinterview/internal/resume"
	"github.com/ent0n29/mockinterview/internal/session"
)

func newTestServer(t *testing.T, primary bool, maxQuestions int, tweaks ...func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		MaxUploadBytes:           8 << 20,
		MaxQuestions:             maxQuestions,
		TempDir:                  t.TempDir(),
	}
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	load := func(context.Context) (inference.Model, error) {
		if !primary {
			return nil, errors.New("no weights")
		}
		return inference.NewMockModel(), nil
	}
	engine := interview.NewEngine(context.Background(), load, interview.FallbackParts{
		Text:        inference.NewMockTextGenerator(),
		Transcriber: inference.NewMockTranscriber(),
	}, interview.Limits{MaxQuestions: maxQuestions, TempDir: cfg.TempDir})

	sessions := session.NewManager(cfg.SessionInactivityTimeout, maxQuestions)
	metrics := observability.NewMetrics("test_httpapi_" + strings.NewReplacer("/", "_", " ", "_", "-", "_").Replace(t.Name()))
	srv := New(cfg, sessions, engine, metrics, Components{TextModel: "mock", Transcriber: "mock"})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func answerWAV(t *testing.T) []byte {
	t.Helper()
	blob, err := audio.EncodeSampleWAV(&audio.Sample{Data: make([]float32, 8000), SampleRate: 16000})
	if err != nil {
		t.Fatalf("EncodeSampleWAV() error = %v", err)
	}
	return blob
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer res.Body.Close()
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", url, err)
		}
	}
	return res.StatusCode
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	var created session.CreateResponse
	status := postJSON(t, ts.URL+"/v1/interview/session", map[string]string{
		"user_id":     "user-1",
		"resume_text": "Backend engineer: Go, Postgres, Kafka.\nBuilt a payments ledger.",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}
	if created.SessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	return created.SessionID
}

func postAnswer(t *testing.T, ts *httptest.Server, id string) (int, answerResponse) {
	t.Helper()
	res, err := http.Post(ts.URL+"/v1/interview/session/"+id+"/answer", "audio/wav", bytes.NewReader(answerWAV(t)))
	if err != nil {
		t.Fatalf("answer request error = %v", err)
	}
	defer res.Body.Close()
	var out answerResponse
	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode answer response: %v", err)
		}
	}
	return res.StatusCode, out
}

func TestInterviewRoundOverHTTP(t *testing.T) {
	ts := newTestServer(t, true, 2)
	id := createSession(t, ts)
	base := ts.URL + "/v1/interview/session/" + id

	if status, _ := postAnswer(t, ts, id); status != http.StatusConflict {
		t.Fatalf("answer before question status = %d, want %d", status, http.StatusConflict)
	}

	var q questionResponse
	if status := postJSON(t, base+"/question", nil, &q); status != http.StatusOK {
		t.Fatalf("question status = %d", status)
	}
	if !strings.Contains(q.Question, "Backend engineer") || q.Index != 1 || q.Total != 2 {
		t.Fatalf("unexpected question response: %+v", q)
	}

	status, ans := postAnswer(t, ts, id)
	if status != http.StatusOK {
		t.Fatalf("answer status = %d", status)
	}
	if ans.Evaluation.Score != 2.4 || ans.Evaluation.FullTranscript != "" {
		t.Fatalf("primary evaluation = %+v, want score 2.4 without transcript", ans.Evaluation)
	}
	if ans.Complete || ans.NextQuestion == "" {
		t.Fatalf("expected a follow-up question: %+v", ans)
	}

	status, ans = postAnswer(t, ts, id)
	if status != http.StatusOK || !ans.Complete || ans.NextQuestion != "" {
		t.Fatalf("final answer = (%d, %+v), want complete", status, ans)
	}
	if ans.Session.Interview.AverageScore != 2.4 || ans.Session.Interview.CompletedAt == nil {
		t.Fatalf("completed snapshot = %+v", ans.Session.Interview)
	}
	if status := postJSON(t, base+"/question", nil, nil); status != http.StatusConflict {
		t.Fatalf("question after completion status = %d, want %d", status, http.StatusConflict)
	}

	res, err := http.Get(base + "/report.pdf")
	if err != nil {
		t.Fatalf("report request error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("report = (%d, %q)", res.StatusCode, res.Header.Get("Content-Type"))
	}

	var restarted session.Session
	if status := postJSON(t, base+"/restart", nil, &restarted); status != http.StatusOK {
		t.Fatalf("restart status = %d", status)
	}
	if restarted.Interview.State != interview.StateAwaitingFirstQuestion {
		t.Fatalf("restart state = %q", restarted.Interview.State)
	}

	if status := postJSON(t, base+"/end", nil, nil); status != http.StatusOK {
		t.Fatalf("end status = %d", status)
	}
	if status := postJSON(t, base+"/question", nil, nil); status != http.StatusGone {
		t.Fatalf("question after end status = %d, want %d", status, http.StatusGone)
	}
}

func TestFallbackPathOverHTTP(t *testing.T) {
	ts := newTestServer(t, false, 5)

	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	var ready map[string]any
	_ = json.NewDecoder(res.Body).Decode(&ready)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || ready["primary_available"] != false || ready["active_backend"] != "fallback" {
		t.Fatalf("readyz = (%d, %+v)", res.StatusCode, ready)
	}

	id := createSession(t, ts)
	var q questionResponse
	if status := postJSON(t, ts.URL+"/v1/interview/session/"+id+"/question", nil, &q); status != http.StatusOK {
		t.Fatalf("question status = %d", status)
	}
	if !strings.HasPrefix(q.Question, "What was the hardest problem") {
		t.Fatalf("fallback question = %q", q.Question)
	}

	status, ans := postAnswer(t, ts, id)
	if status != http.StatusOK {
		t.Fatalf("answer status = %d", status)
	}
	if ans.Evaluation.FullTranscript == "" || ans.Evaluation.Score != 2.5 {
		t.Fatalf("fallback evaluation = %+v, want transcript-based score 2.5", ans.Evaluation)
	}
}

func TestCreateSessionFromPDF(t *testing.T) {
	ts := newTestServer(t, true, 5)

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(0, 8, "Site reliability engineer with Terraform")
	var pdfBuf bytes.Buffer
	if err := doc.Output(&pdfBuf); err != nil {
		t.Fatalf("Output() error = %v", err)
	}

	upload := func(blob []byte) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("resume", "resume.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		_, _ = fw.Write(blob)
		_ = mw.Close()
		res, err := http.Post(ts.URL+"/v1/interview/session", mw.FormDataContentType(), &body)
		if err != nil {
			t.Fatalf("upload error = %v", err)
		}
		return res
	}

	res := upload(pdfBuf.Bytes())
	var created session.CreateResponse
	_ = json.NewDecoder(res.Body).Decode(&created)
	res.Body.Close()
	if res.StatusCode != http.StatusCreated || created.ResumeChars == 0 || !created.PrimaryAvailable {
		t.Fatalf("upload = (%d, %+v)", res.StatusCode, created)
	}

	res = upload([]byte("%PDF-1.4 garbage"))
	var failure errorResponse
	_ = json.NewDecoder(res.Body).Decode(&failure)
	res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity || failure.Code != "resume_unreadable" {
		t.Fatalf("unreadable upload = (%d, %+v)", res.StatusCode, failure)
	}
	if failure.Error != resume.ErrMalformed.Error() {
		t.Fatalf("unreadable upload error = %q, want %q", failure.Error, resume.ErrMalformed.Error())
	}

	if status := postJSON(t, ts.URL+"/v1/interview/session", map[string]string{"resume_text": "   "}, nil); status != http.StatusBadRequest {
		t.Fatalf("blank resume status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t, true, 5)
	res, err := http.Get(ts.URL + "/v1/interview/session/nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestOnboardingStatus(t *testing.T) {
	ts := newTestServer(t, false, 5)

	res, err := http.Get(ts.URL + "/v1/onboarding/status")
	if err != nil {
		t.Fatalf("GET /v1/onboarding/status error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload onboardingStatusResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.PrimaryAvailable || payload.ActiveBackend != "fallback" {
		t.Fatalf("unexpected availability: %+v", payload)
	}
	if len(payload.Checks) == 0 || payload.Checks[0].ID != "primary_model" || payload.Checks[0].Status != "warn" {
		t.Fatalf("unexpected checks: %+v", payload.Checks)
	}
}

func TestSessionWebSocket(t *testing.T) {
	ts := newTestServer(t, true, 1)
	id := createSession(t, ts)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/interview/session/ws?session_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readType := func() map[string]any {
		t.Helper()
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: id, Action: protocol.ActionNextQuestion}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readType(); msg["type"] != string(protocol.TypeQuestion) || msg["index"] != float64(1) {
		t.Fatalf("first message = %+v, want question 1", msg)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, answerWAV(t)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if msg := readType(); msg["type"] != string(protocol.TypeEvaluation) || msg["score"] != 2.4 {
		t.Fatalf("evaluation message = %+v", msg)
	}
	if msg := readType(); msg["type"] != string(protocol.TypeInterviewComplete) {
		t.Fatalf("completion message = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if msg := readType(); msg["type"] != string(protocol.TypeErrorEvent) || msg["code"] != "invalid_client_message" {
		t.Fatalf("error message = %+v", msg)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: id, Action: protocol.ActionEnd}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readType(); msg["type"] != string(protocol.TypeSystemEvent) || msg["code"] != "ended" {
		t.Fatalf("end message = %+v", msg)
	}
}

func TestCreateSessionRedactsResumeContacts(t *testing.T) {
	ts := newTestServer(t, true, 1, func(cfg *config.Config) { cfg.RedactResumePII = true })

	var created session.CreateResponse
	status := postJSON(t, ts.URL+"/v1/interview/session", map[string]string{
		"resume_text": "Reach me at jane.doe@example.com\nStaff engineer, Go and Kafka.",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}

	var q questionResponse
	if status := postJSON(t, ts.URL+"/v1/interview/session/"+created.SessionID+"/question", nil, &q); status != http.StatusOK {
		t.Fatalf("question status = %d", status)
	}
	if strings.Contains(q.Question, "jane.doe@example.com") || !strings.Contains(q.Question, "[REDACTED_EMAIL]") {
		t.Fatalf("question leaked contact details: %q", q.Question)
	}
}
