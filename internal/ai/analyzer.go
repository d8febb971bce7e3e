package ai

import (
	"Go2NetIDS/internal/config"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

const alertPrompt = "You are a senior network security analyst. " +
	"Please analyze the following summary from the Go2NetIDS intrusion detection system, " +
	"whose classifier labels packets as normal or anomaly using NSL-KDD style connection features. " +
	"Provide a concise analysis of the potential threat, its severity, and recommended next steps for investigation. " +
	"The output should be clear, actionable markdown.\n\n" +
	"--- Alert Data ---\n%s\n--- End of Alert Data ---"

// Analyzer asks an OpenAI-compatible chat model to interpret detector output.
type Analyzer struct {
	cfg    *config.AIConfig
	client *openai.Client
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(cfg *config.AIConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Analyzer{cfg: cfg, client: openai.NewClientWithConfig(clientConfig)}, nil
}

func (a *Analyzer) request(input string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:     a.cfg.Model,
		MaxTokens: 2048,
		Stream:    stream,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(alertPrompt, input),
			},
		},
	}
}

// AnalyzeTraffic returns the model's analysis of an alert summary.
func (a *Analyzer) AnalyzeTraffic(ctx context.Context, input string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, a.request(input, false))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled by client: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnalyzeStream is AnalyzeTraffic delivered chunk by chunk.
func (a *Analyzer) AnalyzeStream(ctx context.Context, input string, sendChunk func(string) error) error {
	stream, err := a.client.CreateChatCompletionStream(ctx, a.request(input, true))
	if err != nil {
		return fmt.Errorf("failed to create chat completion stream: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if err := sendChunk(response.Choices[0].Delta.Content); err != nil {
			return fmt.Errorf("failed to deliver chunk: %w", err)
		}
	}
}
