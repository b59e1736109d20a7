package image

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tryon/internal/assets"
)

// ErrMissingAPIKey is returned by providers that cannot run without credentials.
var ErrMissingAPIKey = errors.New("provider api key is not configured")

// SourceImage is an input image loaded into memory for a provider call.
type SourceImage struct {
	Path string
	MIME string
	Data []byte
}

// LoadSource reads the file at path and infers its MIME type from the
// extension.
func LoadSource(path string) (SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceImage{}, fmt.Errorf("load source image: %w", err)
	}
	return SourceImage{Path: path, MIME: assets.MIMEForPath(path), Data: data}, nil
}

// DescribeRequest is the input of the description stage.
type DescribeRequest struct {
	JobID    string
	User     SourceImage
	Style    SourceImage
	UserNote string
}

// TryOnRequest is the input of the image stage. Style is optional.
type TryOnRequest struct {
	JobID       string
	User        SourceImage
	Style       *SourceImage
	Description string
	UserNote    string
}

// Result is a generated image.
type Result struct {
	Data []byte
	MIME string
}

// IdentityRequest pairs the original photo with the generated result.
type IdentityRequest struct {
	JobID  string
	User   SourceImage
	Result SourceImage
}

// Verdict is the outcome of a photo suitability check.
type Verdict struct {
	Suitable bool   `json:"suitable"`
	Reason   string `json:"reason"`
}

// Describer produces a natural-language description of the desired result.
type Describer interface {
	Describe(ctx context.Context, req DescribeRequest) (string, error)
}

// Generator is the contract implemented by all try-on image providers.
type Generator interface {
	GenerateTryOn(ctx context.Context, req TryOnRequest) (Result, error)
}

// IdentityChecker compares the person in two images and returns an advisory note.
type IdentityChecker interface {
	CompareIdentity(ctx context.Context, req IdentityRequest) (string, error)
}

// PhotoValidator decides whether a user photo is usable for try-on.
type PhotoValidator interface {
	ValidatePhoto(ctx context.Context, img SourceImage) (Verdict, error)
}
