package ai

import (
	"Go2NetIDS/internal/config"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) || !assert.NotEmpty(t, req.Messages) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "test-model", req.Model)
		assert.Contains(t, req.Messages[0].Content, "Anomalous packets: 7")

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"SYN flood"}}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"SYN ", "flood"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzer(t *testing.T) {
	srv := fakeOpenAI(t)
	a, err := NewAnalyzer(&config.AIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := a.AnalyzeTraffic(context.Background(), "- Anomalous packets: 7")
	require.NoError(t, err)
	assert.Equal(t, "SYN flood", out)

	var b strings.Builder
	err = a.AnalyzeStream(context.Background(), "- Anomalous packets: 7", func(s string) error {
		b.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "SYN flood", b.String())
}

func TestNewAnalyzer_RequiresKey(t *testing.T) {
	_, err := NewAnalyzer(&config.AIConfig{})
	assert.Error(t, err)
}
