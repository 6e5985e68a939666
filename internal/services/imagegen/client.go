package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trackreel/internal/services"
)

const (
	// MaxPromptLength is the longest prompt the API accepts; longer prompts are truncated.
	MaxPromptLength = 4000

	defaultBaseURL         = "https://api.openai.com/v1"
	defaultModel           = "dall-e-3"
	defaultHTTPTimeout     = 300 * time.Second
	defaultDownloadTimeout = 30 * time.Second
	contentPolicyCode      = "content_policy_violation"
	stageName              = "image"
)

// Config captures the runtime settings required to talk to the images API.
type Config struct {
	APIKey                 string
	BaseURL                string
	Model                  string
	TimeoutSeconds         int
	DownloadTimeoutSeconds int
}

// Request describes one image generation.
type Request struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
}

// Client issues image generation requests.
type Client struct {
	cfg             Config
	httpClient      *http.Client
	downloadTimeout time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client for the configured endpoint.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	download := defaultDownloadTimeout
	if cfg.DownloadTimeoutSeconds > 0 {
		download = time.Duration(cfg.DownloadTimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:             cfg,
		httpClient:      &http.Client{Timeout: timeout},
		downloadTimeout: download,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

// Generate requests one image and returns its encoded bytes.
func (c *Client) Generate(ctx context.Context, req Request) ([]byte, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, services.Classify(services.KindValidation, stageName, "generate", "prompt is empty", nil)
	}
	if c.cfg.APIKey == "" {
		return nil, services.Classify(services.KindAuth, stageName, "generate", "api key required", nil)
	}
	prompt = TruncatePrompt(prompt)

	imageURL, err := c.requestImage(ctx, generationRequest{
		Model:          c.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           strings.TrimSpace(req.Size),
		Quality:        strings.TrimSpace(req.Quality),
		Style:          strings.TrimSpace(req.Style),
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, err
	}
	return c.download(ctx, imageURL)
}

// TruncatePrompt cuts prompt to MaxPromptLength runes.
func TruncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= MaxPromptLength {
		return prompt
	}
	return string(runes[:MaxPromptLength])
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type generationResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) requestImage(ctx context.Context, payload generationRequest) (string, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "images", "generations")
	if err != nil {
		return "", services.Classify(services.KindConfiguration, stageName, "generate", "invalid base url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("imagegen request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("imagegen request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("generate", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("generate", err)
	}

	var parsed generationResponse
	decodeErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode >= http.StatusMultipleChoices || parsed.Error != nil {
		return "", classifyResponse(resp.StatusCode, parsed.Error, body)
	}
	if decodeErr != nil {
		return "", services.Classify(services.KindUnknown, stageName, "generate", "decode response", decodeErr)
	}
	if len(parsed.Data) == 0 || strings.TrimSpace(parsed.Data[0].URL) == "" {
		return "", services.Classify(services.KindUnknown, stageName, "generate", "response contained no image url", nil)
	}
	return strings.TrimSpace(parsed.Data[0].URL), nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, services.Classify(services.KindUnknown, stageName, "download", "invalid image url", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		err := services.Classify(services.KindNetwork, stageName, "download",
			fmt.Sprintf("image download returned status %d", resp.StatusCode), nil)
		return nil, services.WithCode(err, strconv.Itoa(resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError("download", err)
	}
	if len(data) == 0 {
		return nil, services.Classify(services.KindUnknown, stageName, "download", "downloaded image is empty", nil)
	}
	return data, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := services.KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = services.KindTimeout
	}
	return services.Classify(kind, stageName, op, "request failed", err)
}

func classifyResponse(status int, apiErr *apiError, body []byte) error {
	message := fmt.Sprintf("api returned status %d", status)
	code := strconv.Itoa(status)
	if apiErr != nil {
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			message = msg
		}
		if apiErr.Code != "" {
			code = apiErr.Code
		}
	} else if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		message = fmt.Sprintf("%s: %s", message, snippet)
	}

	kind := services.KindUnknown
	switch {
	case isContentPolicy(apiErr, body):
		kind = services.KindContentPolicy
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = services.KindAuth
	case status == http.StatusTooManyRequests:
		kind = services.KindRateLimited
	}
	return services.WithCode(services.Classify(kind, stageName, "generate", message, nil), code)
}

func isContentPolicy(apiErr *apiError, body []byte) bool {
	if apiErr != nil && (apiErr.Code == contentPolicyCode || apiErr.Type == contentPolicyCode) {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte(contentPolicyCode))
}
