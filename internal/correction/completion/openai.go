package completion

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
)

// OpenAIConfig configures the hosted completion backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAICompleter sends chat completion requests through go-openai.
type OpenAICompleter struct {
	client *openai.Client
}

// NewOpenAICompleter builds a completer. An empty BaseURL keeps the client
// default; a zero Timeout means 30s.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAICompleter{client: openai.NewClientWithConfig(oc)}
}

func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	temp := req.Temperature
	if temp == 0 {
		// go-openai drops a zero temperature from the payload (omitempty).
		temp = math.SmallestNonzeroFloat32
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &correction.ExternalServiceError{Op: "completion", Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps client errors onto ExternalServiceError, flagging the ones a
// retry may fix.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	retryable := true
	switch {
	case errors.Is(err, context.Canceled):
		retryable = false
	case status == http.StatusTooManyRequests || status >= 500:
		retryable = true
	case status >= 400:
		retryable = false
	}
	return &correction.ExternalServiceError{Op: "completion", Retryable: retryable, Err: err}
}
