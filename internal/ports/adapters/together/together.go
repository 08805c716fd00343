// Package together talks to OpenAI-compatible inference endpoints (Together AI
// by default) for chat, vision and embeddings.
package together

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/types"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.together.xyz/v1"

type Adapter struct {
	client     *openai.Client
	embedModel string
	limiter    *rate.Limiter
}

type Options struct {
	APIKey            string
	BaseURL           string
	EmbedModel        string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

func New(opts Options) *Adapter {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	a := &Adapter{client: openai.NewClientWithConfig(cfg), embedModel: opts.EmbedModel}
	if opts.RequestsPerMinute > 0 {
		a.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return a
}

func (a *Adapter) Chat(ctx context.Context, model string, msgs []types.Message) (string, error) {
	if model == "" {
		return "", errors.New("together: model is empty")
	}
	if len(msgs) == 0 {
		return "", errors.New("together: no messages")
	}
	if err := a.wait(ctx); err != nil {
		return "", err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toChatMessages(msgs),
	})
	if err != nil {
		return "", wrapErr("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("together: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per input text, in input order.
func (a *Adapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if a.embedModel == "" {
		return nil, errors.New("together: embedding model is not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := a.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(a.embedModel),
	})
	if err != nil {
		return nil, wrapErr("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("together: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("together: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func toChatMessages(msgs []types.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := m.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		if len(m.Images) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Text})
		for _, img := range m.Images {
			mime := img.MIME
			if mime == "" {
				mime = "image/jpeg"
			}
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, MultiContent: parts})
	}
	return out
}

func wrapErr(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("together %s: %s: %w", op, apiErr.Message, ports.ErrRateLimited)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("together %s: %w", op, ports.ErrRateLimited)
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return fmt.Errorf("together %s: %v: %w", op, err, ports.ErrRateLimited)
	}
	return fmt.Errorf("together %s: %w", op, err)
}
