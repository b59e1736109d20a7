package kling

import (
	"strings"

	"tryon/internal/domain"
)

// MapStatus maps a KlingAI task_status onto the local enumeration. The second
// result is false for strings the service does not know; those are treated as
// still processing.
func MapStatus(raw string) (domain.JobStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeed", "success", "completed":
		return domain.JobStatusSucceeded, true
	case "failed", "error":
		return domain.JobStatusFailed, true
	case "submitted", "processing", "pending", "queued":
		return domain.JobStatusProcessing, true
	default:
		return domain.JobStatusProcessing, false
	}
}
