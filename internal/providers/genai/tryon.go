package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "google.golang.org/genai"

	"tryon/internal/domain"
	"tryon/internal/providers/image"
)

var (
	_ image.Describer       = (*Client)(nil)
	_ image.Generator       = (*Client)(nil)
	_ image.IdentityChecker = (*Client)(nil)
	_ image.PhotoValidator  = (*Client)(nil)
)

// Describe asks the text model for a description of the person wearing the
// style reference.
func (c *Client) Describe(ctx context.Context, req image.DescribeRequest) (string, error) {
	parts := []*sdk.Part{
		textPart(buildDescriptionPrompt(req.UserNote)),
		imagePart(req.User),
		imagePart(req.Style),
	}
	resp, err := c.generate(ctx, c.textModel, parts, nil)
	if err != nil {
		return "", err
	}
	text := trimCodeFence(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrDescriptionUnavailable, rejectionReason(resp))
	}
	return text, nil
}

// GenerateTryOn renders the user wearing the style with the image model.
// A response without an image is a rejection carrying the provider's reason.
func (c *Client) GenerateTryOn(ctx context.Context, req image.TryOnRequest) (image.Result, error) {
	parts := []*sdk.Part{
		textPart(buildTryOnPrompt(req.Description, req.UserNote, req.Style != nil)),
		imagePart(req.User),
	}
	if req.Style != nil {
		parts = append(parts, imagePart(*req.Style))
	}
	cfg := &sdk.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	resp, err := c.generate(ctx, c.imageModel, parts, cfg)
	if err != nil {
		return image.Result{}, err
	}
	result, ok := responseImage(resp)
	if !ok {
		reason := rejectionReason(resp)
		c.logger.Warn().Str("job_id", req.JobID).Str("model", c.imageModel).Str("reason", reason).Msg("genai: no image in response")
		return image.Result{}, fmt.Errorf("%w: %s", domain.ErrGenerationRejected, reason)
	}
	return result, nil
}

// CompareIdentity returns an advisory note on whether the result still shows
// the same person as the original photo.
func (c *Client) CompareIdentity(ctx context.Context, req image.IdentityRequest) (string, error) {
	parts := []*sdk.Part{
		textPart(buildIdentityPrompt()),
		imagePart(req.User),
		imagePart(req.Result),
	}
	cfg := &sdk.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := c.generate(ctx, c.textModel, parts, cfg)
	if err != nil {
		return "", err
	}
	raw := responseText(resp)
	payload, err := parseModelPayload[identityPayload](raw)
	if err != nil || payload.SamePerson == nil {
		if text := trimCodeFence(raw); text != "" {
			return text, nil
		}
		return "", fmt.Errorf("genai: identity check returned no verdict: %s", rejectionReason(resp))
	}
	note := strings.TrimSpace(payload.Note)
	if *payload.SamePerson {
		if note == "" {
			return "identity preserved", nil
		}
		return "identity preserved: " + note, nil
	}
	if note == "" {
		return "identity may have drifted", nil
	}
	return "identity may have drifted: " + note, nil
}

// ValidatePhoto asks the text model whether the photo is usable. Transport
// failures and unstructured replies let the photo through with a reason.
func (c *Client) ValidatePhoto(ctx context.Context, img image.SourceImage) (image.Verdict, error) {
	parts := []*sdk.Part{textPart(buildValidationPrompt()), imagePart(img)}
	cfg := &sdk.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := c.generate(ctx, c.textModel, parts, cfg)
	if err != nil {
		if errors.Is(err, domain.ErrProviderTransport) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn().Err(err).Msg("genai: photo validation skipped")
			return image.Verdict{Suitable: true, Reason: "validation skipped: provider unavailable"}, nil
		}
		return image.Verdict{}, err
	}
	payload, err := parseModelPayload[validationPayload](responseText(resp))
	if err != nil || payload.Suitable == nil {
		return image.Verdict{Suitable: true, Reason: "validation reply was not structured; allowed"}, nil
	}
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		reason = "unsuitable"
		if *payload.Suitable {
			reason = "suitable"
		}
	}
	return image.Verdict{Suitable: *payload.Suitable, Reason: reason}, nil
}
