package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

func buildDescriptionPrompt(userNote string) string {
	sb := &strings.Builder{}
	sb.WriteString("You are a fashion stylist preparing a virtual try-on. The first image is the person, the second image is the garment or outfit reference. ")
	sb.WriteString("Describe in one concise paragraph how the person should look wearing the reference outfit: garment type, colour, material, fit, and how it sits on this person's body. ")
	sb.WriteString("Do not describe the person's face or identity. Respond with plain text only.")
	if note := strings.TrimSpace(userNote); note != "" {
		fmt.Fprintf(sb, " The user added this styling request: %q.", note)
	}
	return sb.String()
}

func buildTryOnPrompt(description, userNote string, hasStyle bool) string {
	sb := &strings.Builder{}
	if hasStyle {
		sb.WriteString("Dress the person in the first image in the outfit shown in the second image. ")
	} else {
		sb.WriteString("Restyle the outfit of the person in the image. ")
	}
	if desc := strings.TrimSpace(description); desc != "" {
		fmt.Fprintf(sb, "Target look: %s ", sanitizeDescription(desc))
	}
	if note := strings.TrimSpace(userNote); note != "" {
		fmt.Fprintf(sb, "Honor this styling request without changing who the person is: %q. ", note)
	}
	sb.WriteString("Keep the face, hair, body shape, pose, and background unchanged. Blend edges cleanly and avoid doubled clothing. Return a single photorealistic image.")
	return sb.String()
}

func buildIdentityPrompt() string {
	return "Compare the person in the first image (original photo) with the person in the second image (generated try-on). " +
		`Respond strictly with JSON: {"same_person": true|false, "note": "one short sentence about face, hair, or body differences"}.`
}

func buildValidationPrompt() string {
	return "You are validating whether a photo is suitable for a fashion virtual try-on. Criteria: " +
		"at least one clearly visible real person (no cartoons); the main person is waist-up or full body; " +
		"the person fills a reasonable part of the frame; the person is not heavily obstructed. " +
		`Respond strictly with JSON: {"suitable": true|false, "reason": "short reason"}.`
}

var descriptionReplacements = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\blow[- ]?rise\b`), "mid-rise"},
	{regexp.MustCompile(`(?i)\b(bare|uncovered)\b`), "covered"},
	{regexp.MustCompile(`(?i)\b(see[- ]?through|transparent)\b`), "opaque"},
}

// sanitizeDescription softens wording that tends to trip image safety
// filters before the description is fed back into the image prompt.
func sanitizeDescription(text string) string {
	out := text
	for _, r := range descriptionReplacements {
		out = r.re.ReplaceAllString(out, r.repl)
	}
	return out
}

type identityPayload struct {
	SamePerson *bool  `json:"same_person"`
	Note       string `json:"note"`
}

type validationPayload struct {
	Suitable *bool  `json:"suitable"`
	Reason   string `json:"reason"`
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
