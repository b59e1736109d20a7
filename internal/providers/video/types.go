package video

import (
	"context"
	"io"

	"tryon/internal/domain"
)

// GenerateRequest is an image-to-video submission.
type GenerateRequest struct {
	Image           []byte
	Prompt          string
	DurationSeconds int
	RequestID       string
}

// TaskState is a provider task mapped onto the local status enumeration.
type TaskState struct {
	TaskID    string
	Status    domain.JobStatus
	RawStatus string
	Message   string
	VideoURL  string
}

// Generator is the two-phase contract of image-to-video providers: submit
// returns a task id, poll reports its state.
type Generator interface {
	Submit(ctx context.Context, req GenerateRequest) (string, error)
	Poll(ctx context.Context, taskID string) (TaskState, error)
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
