package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// WhisperCLI transcribes files with the whisper.cpp command line tool.
type WhisperCLI struct {
	cliPath   string
	modelPath string
	language  string
	threads   int
}

func NewWhisperCLI(cli, modelPath, language string, threads int) (*WhisperCLI, error) {
	cli = strings.TrimSpace(cli)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s): %w", cli, err)
	}
	modelPath = strings.TrimSpace(modelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("whisper model path is required: %w", ErrNotConfigured)
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en"
	}
	if threads <= 0 {
		threads = min(max(runtime.NumCPU(), 2), 8)
	}
	return &WhisperCLI{cliPath: cliPath, modelPath: modelPath, language: language, threads: threads}, nil
}

func (w *WhisperCLI) Name() string { return "whisper-cli" }

func (w *WhisperCLI) TranscribeFile(ctx context.Context, path string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "mockinterview-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)
	outPrefix := filepath.Join(tmpDir, "out")

	args := []string{
		"-m", w.modelPath,
		"-f", path,
		"-l", w.language,
		"-t", strconv.Itoa(w.threads),
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}
	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp is chatty; keep the tail.
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// WhisperServer transcribes through a running whisper.cpp server.
type WhisperServer struct {
	baseURL string
	client  *http.Client
}

func NewWhisperServer(baseURL string, timeout time.Duration) (*WhisperServer, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("whisper server url is required: %w", ErrNotConfigured)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WhisperServer{baseURL: baseURL, client: &http.Client{Timeout: timeout}}, nil
}

func (s *WhisperServer) Name() string { return "whisper-server" }

func (s *WhisperServer) TranscribeFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		_ = mw.Close()
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		_ = mw.Close()
		return "", err
	}
	_ = mw.WriteField("temperature", "0.0")
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper-server HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}
