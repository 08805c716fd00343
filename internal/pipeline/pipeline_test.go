package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-cool-video-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-cool-video-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv(envOf(map[string]string{"TOGETHER_API_KEY": "tk"}))
	if cfg.Provider != ProviderTogether {
		t.Fatalf("provider = %q", cfg.Provider)
	}
	if cfg.LLMModel != DefaultLLMModel || cfg.VLMModel != DefaultVLMModel || cfg.SelectorModel != DefaultVLMModel {
		t.Fatalf("unexpected models: %+v", cfg)
	}
	if cfg.EmbedModel != DefaultEmbedModel {
		t.Fatalf("embed model = %q", cfg.EmbedModel)
	}
	if cfg.RequestsPerMinute != 60 {
		t.Fatalf("rpm = %d", cfg.RequestsPerMinute)
	}
	if cfg.Usecase.MaxIterations != 10 || cfg.Usecase.MaxRetries != 6 {
		t.Fatalf("unexpected usecase defaults: %+v", cfg.Usecase)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromEnv_EmptyEmbedModelDisablesEmbeddings(t *testing.T) {
	cfg := FromEnv(envOf(map[string]string{"VIDQA_EMBED_MODEL": ""}))
	if cfg.EmbedModel != "" {
		t.Fatalf("embed model = %q, want empty", cfg.EmbedModel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		offline bool
		wantErr string
	}{
		{name: "missing together key", env: map[string]string{}, wantErr: "TOGETHER_API_KEY"},
		{name: "offline ignores keys", env: map[string]string{}, offline: true},
		{name: "bad rpm", env: map[string]string{"TOGETHER_API_KEY": "k", "VIDQA_REQUESTS_PER_MINUTE": "lots"}, wantErr: "requests per minute"},
		{name: "unknown provider", env: map[string]string{"VIDQA_PROVIDER": "acme"}, wantErr: "unknown provider"},
		{name: "openrouter missing key", env: map[string]string{"VIDQA_PROVIDER": "openrouter"}, wantErr: "OPENROUTER_API_KEY"},
		{name: "openrouter http base", env: map[string]string{
			"VIDQA_PROVIDER":      "OpenRouter",
			"OPENROUTER_API_KEY":  "k",
			"OPENROUTER_BASE_URL": "http://openrouter.ai",
		}, wantErr: "https"},
		{name: "openrouter allowed host", env: map[string]string{
			"VIDQA_PROVIDER":           "openrouter",
			"OPENROUTER_API_KEY":       "k",
			"OPENROUTER_BASE_URL":      "https://proxy.example.com",
			"OPENROUTER_ALLOWED_HOSTS": "proxy.example.com",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := FromEnv(envOf(tc.env))
			cfg.Offline = tc.offline
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestOpen_WiresStoreAndInteractionLog(t *testing.T) {
	tmp := t.TempDir()
	cfg := FromEnv(envOf(map[string]string{"TOGETHER_API_KEY": "k", "VIDQA_EMBED_MODEL": ""}))
	cfg.StorePath = filepath.Join(tmp, "db", "eval.sqlite")
	cfg.InteractionLog = filepath.Join(tmp, "logs", "interactions.jsonl")

	env, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if env.Store == nil || env.Log == nil || env.Video == nil {
		t.Fatalf("env not fully wired: %+v", env)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(cfg.InteractionLog)
	if err != nil {
		t.Fatalf("read interaction log: %v", err)
	}
	if !strings.Contains(string(b), `"kind":"LOG_START"`) {
		t.Fatalf("interaction log missing start entry: %s", b)
	}
}

func TestOpen_MirrorsInteractionLog(t *testing.T) {
	var mirror bytes.Buffer
	cfg := Config{Offline: true, InteractionLog: filepath.Join(t.TempDir(), "interactions.jsonl"), InteractionMirror: &mirror}
	env, err := Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	env.Log.Record("VLM", "QUERY", "which side is white?")
	if err := env.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, want := range []string{`"kind":"LOG_START"`, `"content":"which side is white?"`} {
		if !strings.Contains(mirror.String(), want) {
			t.Fatalf("mirror missing %s:\n%s", want, mirror.String())
		}
	}
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	if _, err := Open(FromEnv(envOf(nil))); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestWriteJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a", "b.json")
	if err := WriteJSON(p, map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(b)) != "{\n  \"n\": 1\n}" {
		t.Fatalf("unexpected json: %s", b)
	}
}
