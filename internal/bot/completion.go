package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	lmStudioTimeout     = 10 * time.Second
	ollamaTimeout       = 30 * time.Second
	lmStudioTemperature = 0.2

	ollamaPersona = "You are a helpful, friendly, and concise chat assistant."
	pingPrompt   = "Hello, are you there?"
)

// Placeholder replies posted to the room when the model does not answer.
const (
	NotConfiguredReply = "[AI not configured]"
	NoResponseReply    = "[No response from model]"
	GaveUpReply        = "[No response from model after retries]"
)

// Replier turns a prompt into the text the participant posts.
type Replier interface {
	Reply(ctx context.Context, prompt string) string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type completionChoice struct {
	Text    string `json:"text"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// completionResponse covers both the OpenAI-compatible shape and Ollama's
// native generate shape.
type completionResponse struct {
	Choices    []completionChoice `json:"choices"`
	Response   *string            `json:"response"`
	DoneReason string             `json:"done_reason"`
}

// reply picks the first text the response carries. found is false when the
// response has neither choices nor a response field.
func (r completionResponse) reply() (text string, found bool) {
	if len(r.Choices) > 0 {
		if r.Choices[0].Text != "" {
			return r.Choices[0].Text, true
		}
		return r.Choices[0].Message.Content, true
	}
	if r.Response != nil {
		return *r.Response, true
	}
	return "", false
}

// Client talks to an OpenAI-compatible completion endpoint served by LM
// Studio or Ollama.
type Client struct {
	cfg             Config
	log             *slog.Logger
	http            *http.Client
	lmStudioTimeout time.Duration
	ollamaTimeout   time.Duration
}

// NewClient returns a completion client for cfg.APIType. A nil log uses
// slog.Default.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:             cfg,
		log:             log,
		http:            &http.Client{},
		lmStudioTimeout: lmStudioTimeout,
		ollamaTimeout:   ollamaTimeout,
	}
}

// Reply never fails: errors are turned into a bracketed placeholder so the
// room sees that the model was asked.
func (c *Client) Reply(ctx context.Context, prompt string) string {
	reply, err := c.Complete(ctx, prompt)
	switch {
	case err == nil:
		return reply
	case errors.Is(err, ErrUnsupportedAPI):
		return NotConfiguredReply
	case errors.Is(err, ErrRetriesExhausted):
		return GaveUpReply
	case errors.Is(err, ErrNoUsableReply):
		return NoResponseReply
	default:
		return fmt.Sprintf("[AI error: %v]", err)
	}
}

// Complete sends prompt to the configured backend.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	switch c.cfg.APIType {
	case APILMStudio:
		return c.lmStudio(ctx, prompt)
	case APIOllama:
		return c.ollama(ctx, prompt)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAPI, c.cfg.APIType)
	}
}

// Ping asks the model a fixed greeting and reports whether it answered.
func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.Complete(ctx, pingPrompt)
}

func (c *Client) lmStudio(ctx context.Context, prompt string) (string, error) {
	temperature := lmStudioTemperature
	resp, err := c.post(ctx, c.lmStudioTimeout, completionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// ollama retries while the model loads, returns an empty reply or the call
// fails outright. A response with nothing to read is final.
func (c *Client) ollama(ctx context.Context, prompt string) (string, error) {
	req := completionRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt + "\n" + ollamaPersona}},
	}

	for attempt := 1; attempt <= c.cfg.OllamaRetries; attempt++ {
		reply, err := c.ollamaOnce(ctx, req)
		if err == nil || errors.Is(err, ErrNoUsableReply) {
			return reply, err
		}

		c.log.Warn("bot.completion_retry",
			"attempt", attempt, "max", c.cfg.OllamaRetries, "wait", c.cfg.OllamaRetryWait, "err", err)
		if attempt == c.cfg.OllamaRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.cfg.OllamaRetryWait):
		}
	}
	return "", ErrRetriesExhausted
}

func (c *Client) ollamaOnce(ctx context.Context, req completionRequest) (string, error) {
	resp, err := c.post(ctx, c.ollamaTimeout, req)
	if err != nil {
		return "", err
	}

	reply, found := resp.reply()
	switch {
	case resp.DoneReason == "load":
		return "", ErrModelLoading
	case !found:
		return "", ErrNoUsableReply
	case strings.TrimSpace(reply) == "":
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(reply), nil
}

func (c *Client) post(ctx context.Context, timeout time.Duration, body completionRequest) (completionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return completionResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return completionResponse{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("bot.completion_request", "api", c.cfg.APIType, "url", c.cfg.APIURL, "model", c.cfg.Model)
	resp, err := c.http.Do(req)
	if err != nil {
		return completionResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return completionResponse{}, fmt.Errorf("reading response: %w", err)
	}
	c.log.Debug("bot.completion_response", "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode >= http.StatusBadRequest {
		return completionResponse{}, fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return completionResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	return out, nil
}
