package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vidqa/internal/ports/adapters/openrouter"
	"github.com/forPelevin/vidqa/internal/ports/adapters/sqlite"
	"github.com/forPelevin/vidqa/internal/ports/adapters/together"
	"github.com/forPelevin/vidqa/internal/usecase"
)

const (
	ProviderTogether   = "together"
	ProviderOpenRouter = "openrouter"

	DefaultLLMModel   = "deepseek-ai/DeepSeek-V3"
	DefaultVLMModel   = "meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8"
	DefaultEmbedModel = "BAAI/bge-base-en-v1.5"
)

type Config struct {
	// Offline skips model provider settings; used by commands that only
	// touch video files.
	Offline bool

	Provider string

	TogetherAPIKey  string
	TogetherBaseURL string

	OpenRouterAPIKey       string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	LLMModel      string
	SelectorModel string
	VLMModel      string
	// EmbedModel enables embedding based key-frame ranking. Only the together
	// provider serves embeddings.
	EmbedModel        string
	RequestsPerMinute int

	FFmpegPath  string
	FFprobePath string

	// StorePath is the sqlite database holding evaluation runs. Empty means
	// no store.
	StorePath string
	// InteractionLog receives every component exchange as JSON lines.
	InteractionLog string
	// InteractionMirror, when set, also receives the interaction log.
	InteractionMirror io.Writer

	Usecase usecase.Config
}

// FromEnv reads provider, model and rate settings through lookupEnv
// (os.LookupEnv in production).
func FromEnv(lookupEnv func(string) (string, bool)) Config {
	get := func(k, def string) string {
		if v, ok := lookupEnv(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	rpm, err := strconv.Atoi(get("VIDQA_REQUESTS_PER_MINUTE", "60"))
	if err != nil {
		rpm = -1
	}
	// An explicitly empty VIDQA_EMBED_MODEL disables embeddings.
	embed := DefaultEmbedModel
	if v, ok := lookupEnv("VIDQA_EMBED_MODEL"); ok {
		embed = strings.TrimSpace(v)
	}
	return Config{
		Provider:               strings.ToLower(get("VIDQA_PROVIDER", ProviderTogether)),
		TogetherAPIKey:         get("TOGETHER_API_KEY", ""),
		TogetherBaseURL:        get("TOGETHER_BASE_URL", together.DefaultBaseURL),
		OpenRouterAPIKey:       get("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:      get("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: openrouter.ParseAllowedHosts(get("OPENROUTER_ALLOWED_HOSTS", "")),
		LLMModel:               get("VIDQA_LLM_MODEL", DefaultLLMModel),
		SelectorModel:          get("VIDQA_SELECTOR_MODEL", DefaultVLMModel),
		VLMModel:               get("VIDQA_VLM_MODEL", DefaultVLMModel),
		EmbedModel:             embed,
		RequestsPerMinute:      rpm,
		FFmpegPath:             get("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:            get("FFPROBE_PATH", "ffprobe"),
		Usecase:                usecase.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if c.Offline {
		return nil
	}
	if c.RequestsPerMinute < 0 {
		return errors.New("requests per minute must be a non-negative integer")
	}
	if c.LLMModel == "" || c.SelectorModel == "" || c.VLMModel == "" {
		return errors.New("llm, selector and vlm models are required")
	}
	switch c.Provider {
	case ProviderTogether:
		if c.TogetherAPIKey == "" {
			return errors.New("TOGETHER_API_KEY is required (set it in .env)")
		}
		return nil
	case ProviderOpenRouter:
		if c.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY is required (set it in .env)")
		}
		return openrouter.ValidateBaseURL(c.OpenRouterBaseURL, c.OpenRouterAllowedHosts)
	default:
		return fmt.Errorf("unknown provider %q (want %s or %s)", c.Provider, ProviderTogether, ProviderOpenRouter)
	}
}

// Env is the wired application: adapters, store and interaction log behind
// one usecase.
type Env struct {
	UC    usecase.Usecase
	Video *ffmpeg.Adapter
	Store *sqlite.Store
	Log   *logging.Interactions
}

// Open builds adapters for cfg. Callers must Close the result.
func Open(cfg Config) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	env := &Env{Video: ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)}
	deps := usecase.Deps{Video: env.Video}

	if !cfg.Offline {
		chat, embed := buildModels(cfg)
		deps.Chat = chat
		deps.Embed = embed
	}

	if cfg.StorePath != "" {
		st, err := sqlite.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		env.Store = st
		deps.Store = st
	}
	if cfg.InteractionLog != "" {
		var mirror []io.Writer
		if cfg.InteractionMirror != nil {
			mirror = append(mirror, cfg.InteractionMirror)
		}
		il, err := logging.OpenInteractions(cfg.InteractionLog, mirror...)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Log = il
		deps.Log = il
	}

	ucCfg := cfg.Usecase
	ucCfg.Models = usecase.Models{LLM: cfg.LLMModel, Selector: cfg.SelectorModel, VLM: cfg.VLMModel}
	env.UC = usecase.New(deps, ucCfg)
	return env, nil
}

func buildModels(cfg Config) (ports.ChatModel, ports.Embedder) {
	if cfg.Provider == ProviderOpenRouter {
		return openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.RequestsPerMinute), nil
	}
	t := together.New(together.Options{
		APIKey:            cfg.TogetherAPIKey,
		BaseURL:           cfg.TogetherBaseURL,
		EmbedModel:        cfg.EmbedModel,
		RequestsPerMinute: cfg.RequestsPerMinute,
	})
	if cfg.EmbedModel == "" {
		return t, nil
	}
	return t, t
}

func (e *Env) Close() error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Log != nil {
		errs = append(errs, e.Log.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	return errors.Join(errs...)
}

// RunDir returns a fresh output directory for one run over input.
func RunDir(outRoot, input string) string {
	if outRoot == "" {
		outRoot = "out"
	}
	return buildRunOutDir(outRoot, input, time.Now().UTC())
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// WriteJSON writes v indented, creating parent directories.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ChatModel = (*openrouter.Adapter)(nil)
var _ ports.ChatModel = (*together.Adapter)(nil)
var _ ports.Embedder = (*together.Adapter)(nil)
var _ ports.ResultStore = (*sqlite.Store)(nil)
