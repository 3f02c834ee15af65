package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.groq.com"
	DefaultModel   = "llama-3.1-8b-instant"

	analysisTemperature = 0.3
	adviceTemperature   = 0.7
	defaultMaxTokens    = 1000

	analysisSystemPrompt = "You are an automotive data analyst. Analyze the provided vehicle data summary " +
		"and return insights using the provided function. Focus on patterns in speed, fuel efficiency, and diagnostics."
)

// GroqConfig configures a GroqClient.
type GroqConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// GroqClient talks to an OpenAI-compatible chat completions endpoint.
// Groq is the default, any compatible base URL works.
type GroqClient struct {
	cfg        GroqConfig
	httpClient *http.Client
}

// NewGroqClient returns ErrConfiguration when the API key is empty.
func NewGroqClient(cfg GroqConfig, httpClient *http.Client) (*GroqClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrConfiguration
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &GroqClient{cfg: cfg, httpClient: httpClient}, nil
}

// Model returns the configured model identifier.
func (c *GroqClient) Model() string {
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolChoice struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  *toolChoice   `json:"tool_choice,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze implements AnalysisProvider. It makes exactly one request;
// retrying is the caller's concern.
func (c *GroqClient) Analyze(ctx context.Context, summary DataSummary) (*Analysis, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: "Analyze this vehicle data summary and provide structured insights: " + string(payload)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        analyzeToolName,
				Description: "Analyze vehicle driving patterns including speed, fuel efficiency, and diagnostics to provide comprehensive insights",
				Parameters:  analyzeToolParameters(),
			},
		}},
		ToolChoice: &toolChoice{
			Type:     "function",
			Function: toolFunction{Name: analyzeToolName},
		},
		Temperature: analysisTemperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, ErrNoAnalysisResult
	}

	var analysis Analysis
	args := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(args), &analysis); err != nil {
		return nil, fmt.Errorf("%w: decode tool arguments: %v", ErrNoAnalysisResult, err)
	}
	return &analysis, nil
}

// Complete implements Completer.
func (c *GroqClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.do(ctx, chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: adviceTemperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *GroqClient) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/openai/v1/chat/completions"
}

func (c *GroqClient) do(ctx context.Context, body chatRequest) (*chatResponse, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp),
		}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// errorMessage prefers the upstream error.message and falls back to the
// status text.
func errorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wrapper) == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return http.StatusText(resp.StatusCode)
}
