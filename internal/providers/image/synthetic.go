package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	stdimage "image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/imaging"
)

// SyntheticGenerator renders a deterministic stand-in result when no model
// credentials are configured. It tints the user photo with a colour derived
// from the job and style so local environments still exercise the pipeline.
type SyntheticGenerator struct {
	logger zerolog.Logger
}

func NewSyntheticGenerator(logger zerolog.Logger) *SyntheticGenerator {
	return &SyntheticGenerator{logger: logger}
}

func (g *SyntheticGenerator) GenerateTryOn(ctx context.Context, req TryOnRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	src, _, err := imaging.Decode(bytes.NewReader(req.User.Data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: synthetic: %v", domain.ErrGenerationRejected, err)
	}
	stylePath := ""
	if req.Style != nil {
		stylePath = req.Style.Path
	}
	seed := deterministicSeed(req.JobID, stylePath, req.Description)
	out := tint(src, colorFromSeed(seed, 0), 0.35)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return Result{}, fmt.Errorf("synthetic: encode: %w", err)
	}
	g.logger.Debug().Str("job_id", req.JobID).Str("seed", seed).Msg("image: rendered synthetic try-on")
	return Result{Data: buf.Bytes(), MIME: "image/png"}, nil
}

// tint blends c over every pixel of src with the given weight.
func tint(src stdimage.Image, c color.RGBA, weight float64) *stdimage.RGBA {
	b := src.Bounds()
	out := stdimage.NewRGBA(stdimage.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i] = blend(out.Pix[i], c.R, weight)
		out.Pix[i+1] = blend(out.Pix[i+1], c.G, weight)
		out.Pix[i+2] = blend(out.Pix[i+2], c.B, weight)
	}
	return out
}

func blend(a, b uint8, w float64) uint8 {
	return uint8(float64(a)*(1-w) + float64(b)*w + 0.5)
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// UnavailableDescriber reports the description stage as disabled.
type UnavailableDescriber struct{}

func (UnavailableDescriber) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	return "", fmt.Errorf("%w: %v", domain.ErrDescriptionUnavailable, ErrMissingAPIKey)
}

// SizeRuleValidator accepts photos whose sides are both at least MinSide
// pixels. It is used when no model is available to judge the photo.
type SizeRuleValidator struct {
	MinSide int
}

func (v SizeRuleValidator) ValidatePhoto(ctx context.Context, img SourceImage) (Verdict, error) {
	minSide := v.MinSide
	if minSide <= 0 {
		minSide = 256
	}
	w, h, err := imaging.DecodeConfig(img.Data)
	if err != nil {
		return Verdict{Suitable: false, Reason: "image could not be decoded"}, nil
	}
	if w < minSide || h < minSide {
		return Verdict{Suitable: false, Reason: fmt.Sprintf("image is too small (%dx%d); at least %dpx per side is needed", w, h, minSide)}, nil
	}
	return Verdict{Suitable: true, Reason: "passed size check"}, nil
}

var (
	_ Generator      = (*SyntheticGenerator)(nil)
	_ Describer      = UnavailableDescriber{}
	_ PhotoValidator = SizeRuleValidator{}
)
