// Package genai talks to the language model that filters a mail corpus down
// to the user's authentic voice and writes new text in that voice.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/session"
)

const (
	DefaultModel     = openai.ChatModelGPT4o
	DefaultMaxTokens = 4096

	filterTemperature   = 0.0
	generateTemperature = 0.7
	refineTemperature   = 0.0
)

// ErrNoChoices is returned when the model answers with nothing.
var ErrNoChoices = errors.New("no choices returned")

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completions struct {
	client openai.Client
}

func (c *completions) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Config configures a Client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64

	// BaseURL overrides the API endpoint, for compatible gateways.
	BaseURL string
}

// Client wraps the chat completion service.
type Client struct {
	chat      chatService
	model     string
	maxTokens int64
	metrics   *instrumentation.Metrics
}

// NewClient creates a Client. metrics may be nil.
func NewClient(cfg Config, metrics *instrumentation.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return newClient(&completions{client: openai.NewClient(opts...)}, cfg, metrics), nil
}

func newClient(chat chatService, cfg Config, metrics *instrumentation.Metrics) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{chat: chat, model: model, maxTokens: maxTokens, metrics: metrics}
}

func (c *Client) complete(ctx context.Context, operation, system, user string, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(c.maxTokens),
		Temperature:         openai.Float(temperature),
	}

	var content string
	err := instrumentation.TrackExternal(ctx, c.metrics, instrumentation.ServiceOpenAI, operation,
		func(ctx context.Context) error {
			resp, err := c.chat.Create(ctx, params)
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return ErrNoChoices
			}
			content = resp.Choices[0].Message.Content
			return nil
		})
	if err != nil {
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	return strings.TrimSpace(content), nil
}

// FilterVoice returns the records of chunk that carry the author's own
// voice, unchanged.
func (c *Client) FilterVoice(ctx context.Context, chunk string) (string, error) {
	return c.complete(ctx, "filter", filterSystemPrompt, fmt.Sprintf(filterPrompt, chunk), filterTemperature)
}

// GenerateRequest describes text to write. Prompt takes precedence over the
// structured fields.
type GenerateRequest struct {
	Prompt    string `json:"prompt,omitempty"`
	Genre     string `json:"genre,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Tone      string `json:"tone,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Length    int    `json:"length,omitempty"`
}

// DefaultLength is the target word count when none is given.
const DefaultLength = 200

// Generate writes text for req in the style shown by examples.
func (c *Client) Generate(ctx context.Context, examples string, req GenerateRequest, profile session.Profile) (string, error) {
	return c.complete(ctx, "generate", styleSystemPrompt, GeneratePrompt(examples, req, profile), generateTemperature)
}

// RefineRequest asks for an edit of earlier output.
type RefineRequest struct {
	Text        string `json:"text"`
	Instruction string `json:"instruction"`
}

// Refine applies req to its text without leaving the style of examples.
func (c *Client) Refine(ctx context.Context, examples string, req RefineRequest, profile session.Profile) (string, error) {
	return c.complete(ctx, "refine", styleSystemPrompt, RefinePrompt(examples, req, profile), refineTemperature)
}
