// Package ai asks an OpenAI-compatible chat completions endpoint to guess
// when a photo was taken.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
)

var (
	ErrRequest       = errors.New(config.ErrAIRequest)
	ErrNoDateInReply = errors.New(config.ErrNoDateInReply)
)

// dateInReply matches the first date-like token of a reply, with - or : separators.
var dateInReply = regexp.MustCompile(`\d{4}[-:]\d{2}[-:]\d{2}`)

// Client talks to the chat completions API.
type Client struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewClient returns a client with the default timeout.
func NewClient(baseURL, model string) *Client {
	return &Client{
		BaseURL: baseURL,
		Model:   model,
		HTTP:    &http.Client{Timeout: config.HTTPTimeout},
	}
}

// agentDoer stamps the application User-Agent on every API call.
type agentDoer struct {
	http *http.Client
}

func (d agentDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	return d.http.Do(req)
}

func (c *Client) api(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(c.BaseURL, "/")
	cfg.HTTPClient = agentDoer{http: c.HTTP}
	return openai.NewClientWithConfig(cfg)
}

// EstimateDate sends the image and returns the guessed date as YYYY-MM-DD.
func (c *Client) EstimateDate(ctx context.Context, image []byte, mimeType, apiKey string) (string, error) {
	log := slog.With(config.LogKeyComponent, config.CompAI, config.LogKeyModel, c.Model)

	req := openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: config.AIPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf(config.FormatDataURL, mimeType, base64.StdEncoding.EncodeToString(image)),
				}},
			},
		}},
		MaxTokens: config.AIMaxTokens,
	}

	log.Debug(config.MsgAIRequest, config.LogKeySizeBytes, len(image))
	start := time.Now()

	resp, err := c.api(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s", ErrRequest, config.ErrAIDecode)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug(config.MsgAIReply,
		config.LogKeyValue, reply,
		config.LogKeyDuration, time.Since(start).Milliseconds())

	date, ok := ExtractDate(reply)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoDateInReply, reply)
	}
	return date, nil
}

// wrapAPIError classifies every client failure as ErrRequest, keeping the
// HTTP status when the service answered.
func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s %d: %s", ErrRequest, config.ErrAIStatus, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %s %d: %v", ErrRequest, config.ErrAIStatus, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return fmt.Errorf("%w: %v", ErrRequest, err)
}

// ExtractDate finds the first YYYY-MM-DD or YYYY:MM:DD token in text and
// returns it with dashes.
func ExtractDate(text string) (string, bool) {
	m := dateInReply.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ReplaceAll(m, ":", config.DateSeparator), true
}
