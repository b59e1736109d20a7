package kling

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/providers/video"
)

// ErrMissingCredentials indicates that the client was configured without keys.
var ErrMissingCredentials = errors.New("kling: access key and secret key are required")

// Options configures the KlingAI image-to-video client.
type Options struct {
	AccessKey      string
	SecretKey      string
	BaseURL        string
	Model          string
	Mode           string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Client performs HTTP calls to the KlingAI image2video API.
type Client struct {
	accessKey  string
	secretKey  string
	baseURL    string
	model      string
	mode       string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

type submitRequest struct {
	ModelName string `json:"model_name"`
	Image     string `json:"image"`
	Prompt    string `json:"prompt,omitempty"`
	Duration  string `json:"duration"`
	Mode      string `json:"mode,omitempty"`
}

type envelope struct {
	Code      int      `json:"code"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id"`
	Data      taskData `json:"data"`
}

type taskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			ID       string `json:"id"`
			URL      string `json:"url"`
			Duration string `json:"duration"`
		} `json:"videos"`
	} `json:"task_result"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api-singapore.klingai.com"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "kling-v2-5-turbo"
	}
	mode := strings.TrimSpace(opts.Mode)
	if mode == "" {
		mode = "std"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		accessKey:  strings.TrimSpace(opts.AccessKey),
		secretKey:  strings.TrimSpace(opts.SecretKey),
		baseURL:    baseURL,
		model:      model,
		mode:       mode,
		httpClient: httpClient,
		logger:     logger,
		now:        now,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// Submit creates an image2video task and returns its id.
func (c *Client) Submit(ctx context.Context, req video.GenerateRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingCredentials
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: source image is empty", domain.ErrInvalidRequest)
	}
	duration := "5"
	if req.DurationSeconds >= 10 {
		duration = "10"
	}
	payload := submitRequest{
		ModelName: c.model,
		Image:     base64.StdEncoding.EncodeToString(req.Image),
		Prompt:    strings.TrimSpace(req.Prompt),
		Duration:  duration,
	}
	// turbo models run at a fixed mode and reject the field
	if !strings.Contains(strings.ToLower(c.model), "turbo") {
		payload.Mode = c.mode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("kling: encode request: %w", err)
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/v1/videos/image2video", body, &env); err != nil {
		return "", err
	}
	taskID := strings.TrimSpace(env.Data.TaskID)
	if taskID == "" {
		return "", errors.New("kling: no task id returned")
	}
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("task_id", taskID).
		Str("model", c.model).
		Str("duration", duration).
		Msg("kling: video task submitted")
	return taskID, nil
}

// Poll fetches the current state of a task. Unknown status strings are
// reported as processing.
func (c *Client) Poll(ctx context.Context, taskID string) (video.TaskState, error) {
	if !c.HasCredentials() {
		return video.TaskState{}, ErrMissingCredentials
	}
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/v1/videos/image2video/"+url.PathEscape(taskID), nil, &env); err != nil {
		return video.TaskState{}, err
	}
	status, known := MapStatus(env.Data.TaskStatus)
	if !known {
		c.logger.Debug().
			Err(fmt.Errorf("%w: %q", domain.ErrProviderStatusUnknown, env.Data.TaskStatus)).
			Str("task_id", taskID).
			Msg("kling: treating unknown task status as processing")
	}
	state := video.TaskState{
		TaskID:    taskID,
		Status:    status,
		RawStatus: env.Data.TaskStatus,
		Message:   env.Data.TaskStatusMsg,
	}
	if status == domain.JobStatusSucceeded {
		for _, v := range env.Data.TaskResult.Videos {
			if strings.TrimSpace(v.URL) != "" {
				state.VideoURL = v.URL
				break
			}
		}
		if state.VideoURL == "" {
			state.Status = domain.JobStatusFailed
			state.Message = "no video url in response"
		}
	}
	if state.Status == domain.JobStatusFailed && state.Message == "" {
		state.Message = "video generation failed"
	}
	return state, nil
}

// Download streams a finished video. The caller closes the body.
func (c *Client) Download(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kling: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("kling: download video: HTTP %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out *envelope) error {
	token, err := signToken(c.accessKey, c.secretKey, c.now())
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("kling: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return transportError(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("kling: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("kling: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Code != 0 {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("kling: api error (http %d, code %d): %s", resp.StatusCode, out.Code, msg)
	}
	return nil
}

// transportError tags network failures so callers can tell them apart from
// API rejections.
func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: kling: %v", domain.ErrProviderTransport, err)
	}
	return fmt.Errorf("kling: %w", err)
}

var _ video.Generator = (*Client)(nil)
