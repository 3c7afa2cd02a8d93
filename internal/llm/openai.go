package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/httpretry"
	"github.com/ignite/pulse/internal/pkg/logger"
)

const openAIService = "openai"

// chatMessage is a message in a chat completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	baseURL    string
	model      string
	keys       KeySource
	httpClient httpretry.HTTPDoer
	log        logger.Func
}

// NewOpenAIClient creates a chat completions client. The key is read from
// keys on every call so rotated keys apply without a restart.
func NewOpenAIClient(cfg config.LLMConfig, keys KeySource, log logger.Func) *OpenAIClient {
	if log == nil {
		log = logger.Nop
	}
	if keys == nil {
		keys = StaticKey(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
		keys:    keys,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 1),
		log: log,
	}
}

// SetHTTPClient replaces the transport.
func (o *OpenAIClient) SetHTTPClient(doer httpretry.HTTPDoer) {
	o.httpClient = doer
}

func (o *OpenAIClient) apiKey(ctx context.Context) (string, error) {
	key, err := o.keys(ctx)
	if err != nil {
		return "", fmt.Errorf("reading text generation key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

func (o *OpenAIClient) Ready(ctx context.Context) error {
	_, err := o.apiKey(ctx)
	return err
}

// Complete posts one chat completion and returns the first choice's content.
func (o *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	key, err := o.apiKey(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	(&oauth2.Token{AccessToken: key}).SetAuthHeader(httpReq)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", apierr.Network(openAIService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.Network(openAIService, fmt.Errorf("reading response: %w", err))
	}
	if err := apierr.FromStatus(openAIService, resp.StatusCode, body, "model "+o.model); err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", apierr.Decode(openAIService, err)
	}
	if len(out.Choices) == 0 {
		return "", apierr.Decode(openAIService, errors.New("response has no choices"))
	}

	o.log(fmt.Sprintf("completion done (in: %d tokens, out: %d tokens)", out.Usage.PromptTokens, out.Usage.CompletionTokens), logger.DEBUG, category)
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
