package interview

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/mockinterview/internal/audio"
	"github.com/ent0n29/mockinterview/internal/inference"
)

type stubModel struct {
	generate func(context.Context, inference.Conversation, int) (string, error)
	calls    int
	convs    []inference.Conversation
	tokens   []int
}

func (s *stubModel) Name() string { return "stub-primary" }

func (s *stubModel) Generate(ctx context.Context, conv inference.Conversation, maxTokens int) (string, error) {
	s.calls++
	s.convs = append(s.convs, conv)
	s.tokens = append(s.tokens, maxTokens)
	return s.generate(ctx, conv, maxTokens)
}

func (s *stubModel) Close() error { return nil }

type stubText struct {
	complete func(context.Context, string, int) (string, error)
	prompts  []string
}

func (s *stubText) Name() string { return "stub-text" }

func (s *stubText) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.complete(ctx, prompt, maxTokens)
}

type stubTranscriber struct {
	transcript string
	err        error
	paths      []string
	existed    []bool
}

func (s *stubTranscriber) Name() string { return "stub-stt" }

func (s *stubTranscriber) TranscribeFile(_ context.Context, path string) (string, error) {
	s.paths = append(s.paths, path)
	_, err := os.Stat(path)
	s.existed = append(s.existed, err == nil)
	return s.transcript, s.err
}

type recordingObserver struct {
	mu        sync.Mutex
	fallbacks []string
	calls     []string
	evals     int
}

func (o *recordingObserver) ObserveInference(backend, operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, backend+"/"+operation+"/"+outcome)
}

func (o *recordingObserver) ObserveFallback(operation, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks = append(o.fallbacks, operation+"/"+reason)
}

func (o *recordingObserver) ObserveEvaluation(string, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evals++
}

func loaderFor(m inference.Model) inference.ModelLoader {
	return func(context.Context) (inference.Model, error) { return m, nil }
}

func failingLoader(calls *int) inference.ModelLoader {
	return func(context.Context) (inference.Model, error) {
		*calls++
		return nil, errors.New("weights not found")
	}
}

func answerWAV(t *testing.T) []byte {
	t.Helper()
	data := make([]float32, 1600)
	for i := range data {
		if i%2 == 0 {
			data[i] = 0.25
		}
	}
	blob, err := audio.EncodeSampleWAV(&audio.Sample{Data: data, SampleRate: 16000})
	if err != nil {
		t.Fatalf("EncodeSampleWAV() error = %v", err)
	}
	return blob
}

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i+1)
	}
	return strings.Join(words, " ")
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir has %d leftover entries, want 0", len(entries))
	}
}

func TestProbeReportsUnavailabilityWithoutPropagating(t *testing.T) {
	ctx := context.Background()

	calls := 0
	if got := Probe(ctx, failingLoader(&calls)); got.Available || got.Err == nil {
		t.Fatalf("Probe(failing) = %+v, want unavailable with error", got)
	}
	if calls != 1 {
		t.Fatalf("loader calls = %d, want 1", calls)
	}

	panicking := func(context.Context) (inference.Model, error) { panic("cuda out of memory") }
	if got := Probe(ctx, panicking); got.Available || !errors.Is(got.Err, errPanic) {
		t.Fatalf("Probe(panicking) = %+v, want recovered panic", got)
	}

	if got := Probe(ctx, nil); got.Available || !errors.Is(got.Err, inference.ErrNotConfigured) {
		t.Fatalf("Probe(nil) = %+v, want ErrNotConfigured", got)
	}

	if got := Probe(ctx, loaderFor(inference.NewMockModel())); !got.Available || got.Model == nil {
		t.Fatalf("Probe(mock) = %+v, want available", got)
	}
}

func TestEngineUnavailablePrimaryUsesFallbackOnly(t *testing.T) {
	ctx := context.Background()
	loads := 0
	text := &stubText{complete: func(context.Context, string, int) (string, error) {
		return "How did you size the connection pool?", nil
	}}
	stt := &stubTranscriber{transcript: numberedWords(12)}
	obs := &recordingObserver{}

	e := NewEngine(ctx, failingLoader(&loads), FallbackParts{Text: text, Transcriber: stt}, Limits{TempDir: t.TempDir()}, WithObserver(obs))

	if e.Available() {
		t.Fatalf("Available() = true, want false")
	}
	if e.ActiveBackend() != "fallback" {
		t.Fatalf("ActiveBackend() = %q, want fallback", e.ActiveBackend())
	}
	if e.ProbeError() == nil {
		t.Fatalf("ProbeError() = nil, want load error")
	}
	if q := e.GenerateQuestion(ctx, "Go developer"); q != "How did you size the connection pool?" {
		t.Fatalf("GenerateQuestion() = %q", q)
	}
	ev := e.EvaluateResponse(ctx, "q", answerWAV(t))
	if ev.Score != 1.2 {
		t.Fatalf("EvaluateResponse() score = %v, want 1.2", ev.Score)
	}
	if loads != 1 {
		t.Fatalf("loader calls = %d, want exactly 1", loads)
	}
	want := []string{OperationQuestion + "/" + ReasonPrimaryUnavailable, OperationEvaluation + "/" + ReasonPrimaryUnavailable}
	if strings.Join(obs.fallbacks, ",") != strings.Join(want, ",") {
		t.Fatalf("fallbacks = %v, want %v", obs.fallbacks, want)
	}
}

func TestEngineTruncatesResumeContext(t *testing.T) {
	ctx := context.Background()
	resume := strings.Repeat("é", 5000)

	model := &stubModel{generate: func(context.Context, inference.Conversation, int) (string, error) {
		return "What did you optimize?", nil
	}}
	e := NewEngine(ctx, loaderFor(model), FallbackParts{}, Limits{})
	if q := e.GenerateQuestion(ctx, resume); q != "What did you optimize?" {
		t.Fatalf("GenerateQuestion() = %q", q)
	}
	conv := model.convs[0]
	if got := len([]rune(conv.Turns[1].Text())); got != 2000 {
		t.Fatalf("primary context length = %d, want 2000", got)
	}
	if conv.SystemText() != InterviewerPersona {
		t.Fatalf("system text = %q", conv.SystemText())
	}
	if model.tokens[0] != 50 {
		t.Fatalf("question max tokens = %d, want 50", model.tokens[0])
	}

	text := &stubText{complete: func(_ context.Context, _ string, maxTokens int) (string, error) {
		if maxTokens != 100 {
			t.Errorf("fallback max tokens = %d, want 100", maxTokens)
		}
		return "Tell me about caching.", nil
	}}
	loads := 0
	fb := NewEngine(ctx, failingLoader(&loads), FallbackParts{Text: text}, Limits{})
	fb.GenerateQuestion(ctx, resume)
	if want := fallbackQuestionPrompt + strings.Repeat("é", 1000); text.prompts[0] != want {
		t.Fatalf("fallback prompt has %d runes, want %d", len([]rune(text.prompts[0])), len([]rune(want)))
	}
}

func TestEngineQuestionFallbacks(t *testing.T) {
	ctx := context.Background()
	loads := 0

	e := NewEngine(ctx, failingLoader(&loads), FallbackParts{}, Limits{})
	if q := e.GenerateQuestion(ctx, "resume"); q != GenericQuestion {
		t.Fatalf("GenerateQuestion() without text model = %q, want generic", q)
	}

	failing := &stubText{complete: func(context.Context, string, int) (string, error) {
		return "", errors.New("connection refused")
	}}
	e = NewEngine(ctx, failingLoader(&loads), FallbackParts{Text: failing}, Limits{})
	if q := e.GenerateQuestion(ctx, "resume"); q != RecoveryQuestion {
		t.Fatalf("GenerateQuestion() with failing text model = %q, want recovery", q)
	}

	panicking := &stubText{complete: func(context.Context, string, int) (string, error) {
		panic("tokenizer exploded")
	}}
	e = NewEngine(ctx, failingLoader(&loads), FallbackParts{Text: panicking}, Limits{})
	if q := e.GenerateQuestion(ctx, "resume"); q != RecoveryQuestion {
		t.Fatalf("GenerateQuestion() with panicking text model = %q, want recovery", q)
	}

	blank := &stubText{complete: func(context.Context, string, int) (string, error) { return "   ", nil }}
	e = NewEngine(ctx, failingLoader(&loads), FallbackParts{Text: blank}, Limits{})
	if q := e.GenerateQuestion(ctx, "resume"); q != GenericQuestion {
		t.Fatalf("GenerateQuestion() with blank output = %q, want generic", q)
	}
}

func TestEnginePrimaryFailureFallsBackForThatCallOnly(t *testing.T) {
	ctx := context.Background()
	fail := true
	model := &stubModel{generate: func(_ context.Context, conv inference.Conversation, _ int) (string, error) {
		if fail {
			return "", errors.New("device lost")
		}
		if conv.AudioCount() == 1 {
			return "Good structure, clear example, but quantify the impact next time.", nil
		}
		return "Which metric did you watch?", nil
	}}
	stt := &stubTranscriber{transcript: numberedWords(30)}
	text := &stubText{complete: func(context.Context, string, int) (string, error) { return "Fallback question?", nil }}
	obs := &recordingObserver{}
	dir := t.TempDir()

	e := NewEngine(ctx, loaderFor(model), FallbackParts{Text: text, Transcriber: stt}, Limits{TempDir: dir}, WithObserver(obs))

	if q := e.GenerateQuestion(ctx, "resume"); q != "Fallback question?" {
		t.Fatalf("GenerateQuestion() after primary failure = %q", q)
	}
	ev := e.EvaluateResponse(ctx, "q", answerWAV(t))
	if ev.Score != 3.0 || ev.Feedback == "" {
		t.Fatalf("EvaluateResponse() after primary failure = %+v, want transcript score 3.0", ev)
	}
	if !e.Available() {
		t.Fatalf("Available() = false after a runtime failure, want true")
	}
	assertDirEmpty(t, dir)

	fail = false
	if q := e.GenerateQuestion(ctx, "resume"); q != "Which metric did you watch?" {
		t.Fatalf("GenerateQuestion() on recovered primary = %q", q)
	}
	ev = e.EvaluateResponse(ctx, "q", answerWAV(t))
	if ev.Score != 1.0 {
		t.Fatalf("EvaluateResponse() primary score = %v, want 1.0", ev.Score)
	}
	if ev.FullTranscript != "" {
		t.Fatalf("primary evaluation carried a transcript: %q", ev.FullTranscript)
	}
	if len(stt.paths) != 1 {
		t.Fatalf("transcriber calls = %d, want 1", len(stt.paths))
	}
	if model.calls != 4 {
		t.Fatalf("primary calls = %d, want 4", model.calls)
	}
	last := model.convs[3]
	if last.AudioCount() != 1 || last.SystemText() != EvaluatorPersona {
		t.Fatalf("evaluation conversation = %+v", last)
	}
	if model.tokens[3] != 100 {
		t.Fatalf("evaluation max tokens = %d, want 100", model.tokens[3])
	}
	if got := obs.fallbacks; len(got) != 2 || got[0] != OperationQuestion+"/"+ReasonPrimaryError || got[1] != OperationEvaluation+"/"+ReasonPrimaryError {
		t.Fatalf("fallbacks = %v", got)
	}
	if obs.evals != 2 {
		t.Fatalf("evaluations observed = %d, want 2", obs.evals)
	}
}

func TestEngineRecoversPrimaryPanic(t *testing.T) {
	ctx := context.Background()
	model := &stubModel{generate: func(context.Context, inference.Conversation, int) (string, error) {
		panic("index out of range")
	}}
	stt := &stubTranscriber{transcript: "short answer"}
	e := NewEngine(ctx, loaderFor(model), FallbackParts{Transcriber: stt}, Limits{TempDir: t.TempDir()})

	if q := e.GenerateQuestion(ctx, "resume"); q != GenericQuestion {
		t.Fatalf("GenerateQuestion() = %q, want generic", q)
	}
	if ev := e.EvaluateResponse(ctx, "q", answerWAV(t)); ev.Score != 0.2 || ev.Feedback != "short answer" {
		t.Fatalf("EvaluateResponse() = %+v", ev)
	}
}

func TestEvaluateResponseFallbackScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("transcript", func(t *testing.T) {
		dir := t.TempDir()
		transcript := numberedWords(42)
		stt := &stubTranscriber{transcript: transcript}
		loads := 0
		e := NewEngine(ctx, failingLoader(&loads), FallbackParts{Transcriber: stt}, Limits{TempDir: dir})

		ev := e.EvaluateResponse(ctx, "Describe a hard bug.", answerWAV(t))
		if ev.Score != 4.2 {
			t.Fatalf("score = %v, want 4.2", ev.Score)
		}
		if ev.Feedback != transcript[:200] {
			t.Fatalf("feedback = %q, want first 200 characters", ev.Feedback)
		}
		if ev.FullTranscript != transcript {
			t.Fatalf("full transcript = %q", ev.FullTranscript)
		}
		if len(stt.existed) != 1 || !stt.existed[0] {
			t.Fatalf("transcriber did not see the answer file: %v", stt.existed)
		}
		if !strings.HasSuffix(stt.paths[0], ".wav") {
			t.Fatalf("answer file = %q, want .wav", stt.paths[0])
		}
		if _, err := os.Stat(stt.paths[0]); !os.IsNotExist(err) {
			t.Fatalf("answer file still present after evaluation: %v", err)
		}
		assertDirEmpty(t, dir)
	})

	t.Run("transcriber error", func(t *testing.T) {
		dir := t.TempDir()
		stt := &stubTranscriber{err: errors.New("ffmpeg missing")}
		loads := 0
		e := NewEngine(ctx, failingLoader(&loads), FallbackParts{Transcriber: stt}, Limits{TempDir: dir})

		ev := e.EvaluateResponse(ctx, "q", answerWAV(t))
		if ev.Score != 0 || ev.Feedback != FeedbackTechnicalIssue {
			t.Fatalf("EvaluateResponse() = %+v, want technical issue", ev)
		}
		assertDirEmpty(t, dir)
	})

	t.Run("no transcriber", func(t *testing.T) {
		dir := t.TempDir()
		loads := 0
		e := NewEngine(ctx, failingLoader(&loads), FallbackParts{}, Limits{TempDir: dir})

		ev := e.EvaluateResponse(ctx, "q", answerWAV(t))
		if ev.Score != NeutralScore || ev.Feedback != FeedbackUnavailable {
			t.Fatalf("EvaluateResponse() = %+v, want neutral unavailable", ev)
		}
		assertDirEmpty(t, dir)
	})

	t.Run("silence", func(t *testing.T) {
		loads := 0
		e := NewEngine(ctx, failingLoader(&loads), FallbackParts{Transcriber: &stubTranscriber{}}, Limits{TempDir: t.TempDir()})

		ev := e.EvaluateResponse(ctx, "q", answerWAV(t))
		if ev.Score != 0 || ev.Feedback != FeedbackNoSpeech {
			t.Fatalf("EvaluateResponse() = %+v, want no speech", ev)
		}
	})
}

func TestEvaluateResponseUndecodableAudioSkipsPrimary(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	model := &stubModel{generate: func(context.Context, inference.Conversation, int) (string, error) {
		return "unused", nil
	}}
	stt := &stubTranscriber{transcript: numberedWords(5)}
	obs := &recordingObserver{}
	e := NewEngine(ctx, loaderFor(model), FallbackParts{Transcriber: stt}, Limits{TempDir: dir}, WithObserver(obs))

	ev := e.EvaluateResponse(ctx, "q", []byte("definitely not audio"))
	if ev.Score != 0.5 {
		t.Fatalf("score = %v, want 0.5", ev.Score)
	}
	if model.calls != 0 {
		t.Fatalf("primary calls = %d, want 0", model.calls)
	}
	if !strings.HasSuffix(stt.paths[0], ".bin") {
		t.Fatalf("answer file = %q, want .bin", stt.paths[0])
	}
	if len(obs.fallbacks) != 1 || obs.fallbacks[0] != OperationEvaluation+"/"+ReasonDecodeError {
		t.Fatalf("fallbacks = %v", obs.fallbacks)
	}
	assertDirEmpty(t, dir)
}

func TestTruncateCountsCharacters(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"", 5, ""},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
