package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/mockinterview/internal/audio"
	"github.com/ent0n29/mockinterview/internal/protocol"
	"github.com/ent0n29/mockinterview/internal/reliability"
	"github.com/ent0n29/mockinterview/internal/session"
)

type options struct {
	baseURL         string
	userID          string
	resumePath      string
	resumeText      string
	answerPaths     []string
	attempts        int
	questionTimeout time.Duration
	interAnswer     time.Duration
	verbose         bool
}

type wsEnvelope struct {
	Type           string  `json:"type"`
	Index          int     `json:"index,omitempty"`
	Total          int     `json:"total,omitempty"`
	Text           string  `json:"text,omitempty"`
	Score          float64 `json:"score,omitempty"`
	Feedback       string  `json:"feedback,omitempty"`
	FullTranscript string  `json:"full_transcript,omitempty"`
	Answered       int     `json:"answered,omitempty"`
	AverageScore   float64 `json:"average_score,omitempty"`
	DurationMS     int64   `json:"duration_ms,omitempty"`
	Code           string  `json:"code,omitempty"`
	Detail         string  `json:"detail,omitempty"`
}

type answerClip struct {
	Path     string
	Blob     []byte
	Duration time.Duration
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "interviewdrill: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "interviewdrill: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var answersRaw string
	var questionTimeoutMS int
	var interAnswerMS int

	fs := flag.NewFlagSet("interviewdrill", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "mock interview service base URL")
	fs.StringVar(&cfg.userID, "user-id", "drill", "user_id for the session")
	fs.StringVar(&cfg.resumePath, "resume", "", "resume file (.pdf is uploaded, anything else is sent as text)")
	fs.StringVar(&cfg.resumeText, "resume-text", "", "inline resume text, used when -resume is empty")
	fs.StringVar(&answersRaw, "answers", "", "answer recordings (WAV or MP3) separated by '|', cycled per question")
	fs.IntVar(&questionTimeoutMS, "question-timeout-ms", 120000, "timeout waiting for each server reply in milliseconds")
	fs.IntVar(&cfg.attempts, "attempts", 5, "session create attempts while the service is starting or overloaded")
	fs.IntVar(&interAnswerMS, "inter-answer-ms", 0, "pause before each answer in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print feedback and transcripts")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	cfg.resumePath = strings.TrimSpace(cfg.resumePath)
	cfg.resumeText = strings.TrimSpace(cfg.resumeText)
	if cfg.resumePath == "" && cfg.resumeText == "" {
		return options{}, fmt.Errorf("one of resume or resume-text is required")
	}
	for _, part := range strings.Split(answersRaw, "|") {
		if p := strings.TrimSpace(part); p != "" {
			cfg.answerPaths = append(cfg.answerPaths, p)
		}
	}
	if len(cfg.answerPaths) == 0 {
		return options{}, fmt.Errorf("answers produced no recordings")
	}
	if questionTimeoutMS < 1000 {
		questionTimeoutMS = 1000
	}
	if interAnswerMS < 0 {
		interAnswerMS = 0
	}
	cfg.questionTimeout = time.Duration(questionTimeoutMS) * time.Millisecond
	cfg.interAnswer = time.Duration(interAnswerMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	clips, err := loadAnswers(cfg.answerPaths)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	var created session.CreateResponse
	err = reliability.Retry(ctx, cfg.attempts, 250*time.Millisecond, 4*time.Second, func() error {
		var createErr error
		created, createErr = createSession(ctx, httpClient, cfg)
		return createErr
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Printf("interviewdrill: session=%s questions=%d primary_available=%t resume_chars=%d\n",
		created.SessionID, created.MaxQuestions, created.PrimaryAvailable, created.ResumeChars)

	wsURL, err := wsURLForSession(cfg.baseURL, created.SessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replies := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, replies, readErrCh)

	if err := sendControl(conn, created.SessionID, protocol.ActionNextQuestion); err != nil {
		return fmt.Errorf("request first question: %w", err)
	}

	answered := 0
	for {
		msg, err := await(replies, readErrCh, cfg.questionTimeout)
		if err != nil {
			return fmt.Errorf("await reply: %w", err)
		}
		switch msg.Type {
		case string(protocol.TypeQuestion):
			fmt.Printf("Q%d/%d: %s\n", msg.Index, msg.Total, msg.Text)
			clip := clips[answered%len(clips)]
			if cfg.interAnswer > 0 {
				time.Sleep(cfg.interAnswer)
			}
			started := time.Now()
			if err := conn.WriteMessage(websocket.BinaryMessage, clip.Blob); err != nil {
				return fmt.Errorf("send answer %d: %w", msg.Index, err)
			}
			ev, err := awaitType(replies, readErrCh, cfg.questionTimeout, protocol.TypeEvaluation)
			if err != nil {
				return fmt.Errorf("answer %d evaluation: %w", msg.Index, err)
			}
			answered++
			fmt.Printf("A%d: %s (%s audio) score=%.1f latency=%s\n",
				ev.Index, filepath.Base(clip.Path), clip.Duration.Round(time.Millisecond), ev.Score, time.Since(started).Round(time.Millisecond))
			if cfg.verbose {
				fmt.Printf("    feedback: %s\n", ev.Feedback)
				if ev.FullTranscript != "" && ev.FullTranscript != ev.Feedback {
					fmt.Printf("    transcript: %s\n", ev.FullTranscript)
				}
			}
		case string(protocol.TypeInterviewComplete):
			fmt.Printf("interviewdrill: complete answered=%d average=%.1f duration=%s\n",
				msg.Answered, msg.AverageScore, (time.Duration(msg.DurationMS) * time.Millisecond).Round(time.Second))
			_ = sendControl(conn, created.SessionID, protocol.ActionEnd)
			return nil
		case string(protocol.TypeErrorEvent):
			return fmt.Errorf("error_event code=%s detail=%s", msg.Code, msg.Detail)
		}
	}
}

// loadAnswers reads every recording up front and rejects what the service
// would not decode.
func loadAnswers(paths []string) ([]answerClip, error) {
	out := make([]answerClip, 0, len(paths))
	for _, p := range paths {
		blob, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read answer %s: %w", p, err)
		}
		sample, err := audio.Decode(blob, audio.DefaultSampleRate)
		if err != nil {
			return nil, fmt.Errorf("decode answer %s: %w", p, err)
		}
		out = append(out, answerClip{Path: p, Blob: blob, Duration: sample.Duration()})
	}
	return out, nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (session.CreateResponse, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case strings.EqualFold(filepath.Ext(cfg.resumePath), ".pdf"):
		blob, err := os.ReadFile(cfg.resumePath)
		if err != nil {
			return session.CreateResponse{}, err
		}
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("user_id", cfg.userID)
		part, err := mw.CreateFormFile("resume", filepath.Base(cfg.resumePath))
		if err != nil {
			return session.CreateResponse{}, err
		}
		if _, err := part.Write(blob); err != nil {
			return session.CreateResponse{}, err
		}
		if err := mw.Close(); err != nil {
			return session.CreateResponse{}, err
		}
		body, contentType = &buf, mw.FormDataContentType()
	default:
		text := cfg.resumeText
		if cfg.resumePath != "" {
			raw, err := os.ReadFile(cfg.resumePath)
			if err != nil {
				return session.CreateResponse{}, err
			}
			text = string(raw)
		}
		payload, err := json.Marshal(session.CreateRequest{UserID: cfg.userID, ResumeText: text})
		if err != nil {
			return session.CreateResponse{}, err
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/interview/session", body)
	if err != nil {
		return session.CreateResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)

	res, err := client.Do(req)
	if err != nil {
		return session.CreateResponse{}, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return session.CreateResponse{}, err
	}
	if res.StatusCode != http.StatusCreated {
		return session.CreateResponse{}, &reliability.StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out session.CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return session.CreateResponse{}, err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return session.CreateResponse{}, fmt.Errorf("missing session_id in response")
	}
	return out, nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/interview/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, replies chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		replies <- env
	}
}

func sendControl(conn *websocket.Conn, sessionID, action string) error {
	return conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    action,
		TSMs:      time.Now().UnixMilli(),
	})
}

func await(replies <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-replies:
		return msg, nil
	case err := <-readErrCh:
		return wsEnvelope{}, err
	case <-timer.C:
		return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
	}
}

// awaitType skips system events until a message of type want arrives.
func awaitType(replies <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, want protocol.MessageType) (wsEnvelope, error) {
	for {
		msg, err := await(replies, readErrCh, timeout)
		if err != nil {
			return wsEnvelope{}, err
		}
		switch msg.Type {
		case string(want):
			return msg, nil
		case string(protocol.TypeErrorEvent):
			return wsEnvelope{}, fmt.Errorf("error_event code=%s detail=%s", msg.Code, msg.Detail)
		}
	}
}
