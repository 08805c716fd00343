package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/types"
	"golang.org/x/time/rate"
)

type Adapter struct {
	key     string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

const (
	requestTimeout = 90 * time.Second
)

// New builds a chat client. requestsPerMinute <= 0 disables client-side
// throttling.
func New(apiKey, baseURL string, requestsPerMinute int) *Adapter {
	baseURL = normalizeBaseURL(baseURL)
	a := &Adapter{key: apiKey, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
	if requestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return a
}

func (a *Adapter) Chat(ctx context.Context, model string, msgs []types.Message) (string, error) {
	if model == "" {
		return "", errors.New("openrouter: model is empty")
	}
	if len(msgs) == 0 {
		return "", errors.New("openrouter: no messages")
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	payload := map[string]any{
		"model":    model,
		"stream":   false,
		"messages": encodeMessages(msgs),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, model)
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		msg := truncate(redactSecrets(string(rb), a.key), 400)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("openrouter status %d: %s: %w", resp.StatusCode, msg, ports.ErrRateLimited)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, msg)
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	// Upstream provider failures can arrive with a 200 and an error object.
	if raw.Error != nil {
		msg := redactSecrets(raw.Error.Message, a.key)
		if isRateLimitMessage(msg) || fmt.Sprint(raw.Error.Code) == "429" {
			return "", fmt.Errorf("openrouter: %s: %w", msg, ports.ErrRateLimited)
		}
		return "", fmt.Errorf("openrouter: %s", msg)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

func encodeMessages(msgs []types.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = "user"
		}
		if len(m.Images) == 0 {
			out = append(out, map[string]any{"role": role, "content": m.Text})
			continue
		}
		parts := make([]map[string]any, 0, len(m.Images)+1)
		parts = append(parts, map[string]any{"type": "text", "text": m.Text})
		for _, img := range m.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": dataURL(img)},
			})
		}
		out = append(out, map[string]any{"role": role, "content": parts})
	}
	return out
}

func dataURL(img types.Image) string {
	mime := img.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	case nil:
		return "", errors.New("openrouter: empty content")
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func isRateLimitMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") || strings.Contains(s, "rate-limit") || strings.Contains(s, "too many requests")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
