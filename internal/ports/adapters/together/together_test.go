package together

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forPelevin/vidqa/internal/ports"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{APIKey: "k", BaseURL: srv.URL, EmbedModel: "embed-m"})
}

func TestChat_MultiContentForImages(t *testing.T) {
	var req map[string]any
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Frame 1: a chair"}}]}`))
	})

	out, err := a.Chat(context.Background(), "vlm", []types.Message{
		{Role: "user", Text: "describe", Images: []types.Image{{Data: []byte("jpeg")}}},
	})
	require.NoError(t, err)
	require.Equal(t, "Frame 1: a chair", out)

	msgs := req["messages"].([]any)
	require.Len(t, msgs, 1)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	require.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestChat_RateLimited(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"too many requests","type":"rate_limit"}}`))
	})

	_, err := a.Chat(context.Background(), "m", []types.Message{types.UserText("hi")})
	require.Error(t, err)
	require.True(t, errors.Is(err, ports.ErrRateLimited), "got %v", err)
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"model":"embed-m"}`))
	})

	out, err := a.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, out)
}

func TestEmbed_RequiresModel(t *testing.T) {
	a := New(Options{APIKey: "k"})
	_, err := a.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestEmbed_EmptyInput(t *testing.T) {
	a := New(Options{APIKey: "k", EmbedModel: "m"})
	out, err := a.Embed(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)
}
