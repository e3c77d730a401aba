package httpapi

import (
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	PrimaryModelMode string            `json:"primary_model_mode"`
	PrimaryAvailable bool              `json:"primary_available"`
	ActiveBackend    string            `json:"active_backend"`
	TextModel        string            `json:"text_model"`
	Transcriber      string            `json:"transcriber"`
	Checks           []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	mode := strings.ToLower(strings.TrimSpace(s.cfg.PrimaryModelMode))
	if mode == "" {
		mode = "auto"
	}

	checks := make([]onboardingCheck, 0, 6)
	checks = append(checks, s.primaryCheck())
	checks = append(checks, componentCheck("text_model", "Fallback question model", s.components.TextModel,
		"Run `ollama pull qwen2.5:0.5b` or set YANDEXGPT_IAM_TOKEN and YANDEXGPT_CATALOG_ID."))
	checks = append(checks, componentCheck("transcriber", "Fallback speech-to-text", s.components.Transcriber,
		"Install whisper-cli or set WHISPER_SERVER_URL."))
	checks = append(checks, s.whisperModelCheck()...)
	checks = append(checks, tempDirCheck(s.cfg.TempDir))

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		PrimaryModelMode: mode,
		PrimaryAvailable: s.engine.Available(),
		ActiveBackend:    s.engine.ActiveBackend(),
		TextModel:        orNone(s.components.TextModel),
		Transcriber:      orNone(s.components.Transcriber),
		Checks:           checks,
	})
}

func (s *Server) primaryCheck() onboardingCheck {
	if s.engine.Available() {
		return onboardingCheck{
			ID:     "primary_model",
			Status: "ok",
			Label:  "Primary multimodal model",
			Detail: "loaded",
		}
	}
	detail := "not loaded"
	if err := s.engine.ProbeError(); err != nil {
		detail = err.Error()
	}
	return onboardingCheck{
		ID:     "primary_model",
		Status: "warn",
		Label:  "Primary multimodal model",
		Detail: detail,
		Fix:    "Set GEMINI_API_KEY or PRIMARY_HTTP_URL, then restart. Interviews keep running on the fallback path.",
	}
}

func componentCheck(id, label, name, fix string) onboardingCheck {
	if strings.TrimSpace(name) == "" {
		return onboardingCheck{ID: id, Status: "warn", Label: label, Detail: "not loaded", Fix: fix}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: name}
}

// whisperModelCheck only applies when the local whisper CLI is the transcriber.
func (s *Server) whisperModelCheck() []onboardingCheck {
	if s.components.Transcriber != "whisper-cli" {
		return nil
	}
	out := make([]onboardingCheck, 0, 2)

	cli := strings.TrimSpace(s.cfg.LocalWhisperCLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	if _, err := exec.LookPath(cli); err != nil {
		out = append(out, onboardingCheck{
			ID:     "whisper_cli",
			Status: "error",
			Label:  "Whisper CLI",
			Detail: cli + " not found",
		})
	}

	modelPath := strings.TrimSpace(s.cfg.LocalWhisperModelPath)
	if modelPath != "" && !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if modelPath == "" {
		return out
	}
	if _, err := os.Stat(modelPath); err != nil {
		out = append(out, onboardingCheck{
			ID:     "whisper_model",
			Status: "error",
			Label:  "Whisper model",
			Detail: "model file missing",
			Fix:    "Download a ggml model and set LOCAL_WHISPER_MODEL_PATH.",
		})
	} else {
		out = append(out, onboardingCheck{
			ID:     "whisper_model",
			Status: "ok",
			Label:  "Whisper model",
			Detail: "present",
		})
	}
	return out
}

func tempDirCheck(dir string) onboardingCheck {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "probe-*")
	if err != nil {
		return onboardingCheck{
			ID:     "temp_dir",
			Status: "error",
			Label:  "Answer scratch directory",
			Detail: err.Error(),
			Fix:    "Point APP_TEMP_DIR at a writable directory.",
		}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return onboardingCheck{ID: "temp_dir", Status: "ok", Label: "Answer scratch directory", Detail: dir}
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "none"
	}
	return v
}
