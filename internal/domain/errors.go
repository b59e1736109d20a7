package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrAssetNotFound          = errors.New("asset not found")
	ErrInvalidAsset           = errors.New("invalid asset")
	ErrDescriptionUnavailable = errors.New("description unavailable")
	ErrGenerationRejected     = errors.New("generation rejected")
	ErrProviderTransport      = errors.New("provider transport error")
	ErrProviderStatusUnknown  = errors.New("provider status unknown")
	ErrSourceNotReady         = errors.New("source job not succeeded")
	ErrInterrupted            = errors.New("interrupted by restart")
)
