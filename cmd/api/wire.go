package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tryon/internal/assets"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
	"tryon/internal/providers/genai"
	"tryon/internal/providers/image"
	"tryon/internal/providers/kling"
	videoprovider "tryon/internal/providers/video"
	"tryon/internal/storage"
)

type providerSet struct {
	describer image.Describer
	generator image.Generator
	identity  image.IdentityChecker
	validator image.PhotoValidator
	video     videoprovider.Generator
}

// buildProviders prefers env credentials and falls back to the
// integration_tokens table. Without a Gemini key the image stage runs on the
// synthetic generator and the model-backed stages are disabled.
func buildProviders(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (*providerSet, error) {
	geminiKey := cfg.GeminiAPIKey
	klingAccess, klingSecret := cfg.KlingAccessKey, cfg.KlingSecretKey
	if creds != nil {
		if geminiKey == "" {
			key, err := creds.GeminiAPIKey(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("api: failed to load gemini api key from store")
			}
			geminiKey = key
		}
		if klingAccess == "" || klingSecret == "" {
			access, secret, err := creds.KlingKeys(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("api: failed to load klingai keys from store")
			}
			if access != "" && secret != "" {
				klingAccess, klingSecret = access, secret
			}
		}
	}

	set := &providerSet{}
	client, err := genai.NewClient(ctx, genai.Options{
		APIKey:     geminiKey,
		BaseURL:    cfg.GeminiBaseURL,
		ImageModel: cfg.GeminiImageModel,
		TextModel:  cfg.GeminiLLMModel,
		Logger:     &logger,
	})
	switch {
	case errors.Is(err, image.ErrMissingAPIKey):
		logger.Warn().Msg("api: gemini api key missing, using synthetic try-on generation")
		set.describer = image.UnavailableDescriber{}
		set.generator = image.NewSyntheticGenerator(logger)
		set.validator = image.SizeRuleValidator{}
	case err != nil:
		return nil, err
	default:
		set.describer = client
		set.generator = client
		set.validator = client
		if cfg.IdentityCheckEnabled {
			set.identity = client
		}
		logger.Info().Str("image_model", client.ImageModel()).Str("text_model", client.TextModel()).Msg("api: gemini configured")
	}

	kc, err := kling.NewClient(kling.Options{
		AccessKey: klingAccess,
		SecretKey: klingSecret,
		BaseURL:   cfg.KlingBaseURL,
		Model:     cfg.KlingVideoModel,
		Mode:      cfg.KlingVideoMode,
		Logger:    &logger,
	})
	if err != nil {
		return nil, err
	}
	if !kc.HasCredentials() {
		logger.Warn().Msg("api: klingai keys missing, video jobs will fail")
	}
	set.video = kc
	return set, nil
}

func newResolver(cfg *infra.Config, staging *storage.FileStore) (*assets.Resolver, error) {
	// the storage root makes /static/outputs/... URLs resolvable, so a
	// previous result can be reused as input
	roots := append([]string(nil), cfg.AssetRoots...)
	roots = append(roots, cfg.StoragePath, cfg.OutputsDir)
	for i, r := range roots {
		roots[i] = strings.TrimSpace(r)
	}
	r, err := assets.NewResolver(roots, staging)
	if err != nil {
		return nil, fmt.Errorf("asset resolver: %w", err)
	}
	return r, nil
}
