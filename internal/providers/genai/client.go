package genai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sdk "google.golang.org/genai"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/providers/image"
)

const (
	defaultImageModel = "gemini-2.5-flash-image"
	defaultTextModel  = "gemini-2.5-flash"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageModel string
	TextModel  string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// contentGenerator is the slice of the SDK used by the client.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*sdk.Content, config *sdk.GenerateContentConfig) (*sdk.GenerateContentResponse, error)
}

// Client adapts the Gemini SDK to the try-on stage contracts. One value
// serves the description, image, identity and photo validation stages.
type Client struct {
	models     contentGenerator
	imageModel string
	textModel  string
	logger     zerolog.Logger
}

// NewClient constructs a Gemini client. An empty API key is reported as
// image.ErrMissingAPIKey so callers can fall back to synthetic providers.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, image.ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	cfg := &sdk.ClientConfig{
		APIKey:     apiKey,
		Backend:    sdk.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.HTTPOptions = sdk.HTTPOptions{BaseURL: base}
	}
	sdkClient, err := sdk.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	return newClient(sdkClient.Models, opts), nil
}

func newClient(models contentGenerator, opts Options) *Client {
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		models:     models,
		imageModel: imageModel,
		textModel:  textModel,
		logger:     logger,
	}
}

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string {
	return c.textModel
}

func (c *Client) generate(ctx context.Context, model string, parts []*sdk.Part, cfg *sdk.GenerateContentConfig) (*sdk.GenerateContentResponse, error) {
	contents := []*sdk.Content{{Role: "user", Parts: parts}}
	started := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		c.logger.Debug().Err(err).Str("model", model).Dur("took", time.Since(started)).Msg("genai: generate content failed")
		return nil, classify(err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", domain.ErrGenerationRejected)
	}
	c.logger.Debug().Str("model", model).Dur("took", time.Since(started)).Int("candidates", len(resp.Candidates)).Msg("genai: generate content")
	return resp, nil
}

func textPart(text string) *sdk.Part {
	return &sdk.Part{Text: text}
}

func imagePart(src image.SourceImage) *sdk.Part {
	mime := src.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return &sdk.Part{InlineData: &sdk.Blob{Data: src.Data, MIMEType: mime}}
}

// providerError keeps the provider's message intact while letting callers
// match it against a domain sentinel.
type providerError struct {
	kind error
	err  error
}

func (e *providerError) Error() string { return e.err.Error() }

func (e *providerError) Unwrap() error { return e.err }

func (e *providerError) Is(target error) bool { return target == e.kind }

// classify marks timeouts and network failures as transport errors. Any
// other SDK error is returned untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return &providerError{kind: domain.ErrProviderTransport, err: err}
	}
	return err
}

// responseText joins every text part of the first candidate that has any.
func responseText(resp *sdk.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text
		}
	}
	return ""
}

// responseImage returns the first inline image blob in the response.
func responseImage(resp *sdk.GenerateContentResponse) (image.Result, bool) {
	if resp == nil {
		return image.Result{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime != "" && !strings.HasPrefix(mime, "image/") {
				continue
			}
			if mime == "" {
				mime = "image/png"
			}
			return image.Result{Data: part.InlineData.Data, MIME: mime}, true
		}
	}
	return image.Result{}, false
}

// rejectionReason explains why a response carried no image, preferring the
// provider's own wording.
func rejectionReason(resp *sdk.GenerateContentResponse) string {
	if resp == nil {
		return "empty response"
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		if fb.BlockReasonMessage != "" {
			return fmt.Sprintf("prompt blocked (%s): %s", fb.BlockReason, fb.BlockReasonMessage)
		}
		return fmt.Sprintf("prompt blocked (%s)", fb.BlockReason)
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		reason := string(cand.FinishReason)
		if reason != "" && reason != string(sdk.FinishReasonStop) {
			if cand.FinishMessage != "" {
				return fmt.Sprintf("finish reason %s: %s", reason, cand.FinishMessage)
			}
			return "finish reason " + reason
		}
	}
	if text := responseText(resp); text != "" {
		return "model returned text instead of an image: " + text
	}
	if len(resp.Candidates) == 0 {
		return "no candidates returned"
	}
	return "no image returned"
}
