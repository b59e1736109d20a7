package video

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/metrics"
	videoprovider "tryon/internal/providers/video"
	"tryon/internal/storage"
)

// DefaultMotionPrompt is used when the caller does not describe the motion.
const DefaultMotionPrompt = "The person slowly turns around in a full circle to show the outfit from every side, natural motion, steady camera."

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("video: orchestrator closed")

// JobSource looks up try-on jobs.
type JobSource interface {
	Poll(ctx context.Context, jobID string) (domain.Job, error)
}

// SubmitRequest names the source either by job id or by its result image.
type SubmitRequest struct {
	SourceJobID     string
	SourceImageRef  string
	Prompt          string
	DurationSeconds int
}

// Options wires the video orchestrator.
type Options struct {
	Jobs         JobSource
	History      domain.HistoryRepository
	Provider     videoprovider.Generator
	Outputs      *storage.FileStore
	Logger       zerolog.Logger
	PollInterval time.Duration
	Timeout      time.Duration
	Now          func() time.Time
}

// Orchestrator animates succeeded try-on results through an asynchronous
// image-to-video provider.
type Orchestrator struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	jobs     map[string]*domain.VideoJob
	bySource map[string]string
	closed   bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates opts and returns a ready orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Jobs == nil || opts.Provider == nil || opts.Outputs == nil {
		return nil, errors.New("video: jobs, provider and outputs are required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:     opts,
		logger:   opts.Logger,
		now:      func() time.Time { return now().UTC() },
		jobs:     make(map[string]*domain.VideoJob),
		bySource: make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NormalizeDuration limits a requested length to the provider's 5 or 10
// second options.
func NormalizeDuration(seconds int) int {
	if seconds > 7 {
		return 10
	}
	return 5
}

// Submit validates the source job and schedules the video. It fails fast,
// without a provider call, when the source is unknown or not succeeded.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (domain.VideoJob, error) {
	sourceID := strings.TrimSpace(req.SourceJobID)
	if sourceID == "" {
		sourceID = jobIDFromResultRef(req.SourceImageRef)
	}
	if sourceID == "" {
		return domain.VideoJob{}, fmt.Errorf("%w: source_job_id or a result image reference is required", domain.ErrInvalidRequest)
	}
	source, err := o.opts.Jobs.Poll(ctx, sourceID)
	if err != nil {
		return domain.VideoJob{}, err
	}
	if source.Status != domain.JobStatusSucceeded || source.ResultImagePath == "" {
		return domain.VideoJob{}, fmt.Errorf("%w: job %s is %s", domain.ErrSourceNotReady, source.ID, source.Status)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultMotionPrompt
	}
	vj := &domain.VideoJob{
		ID:              uuid.NewString(),
		SourceJobID:     source.ID,
		Status:          domain.JobStatusPending,
		Prompt:          prompt,
		DurationSeconds: NormalizeDuration(req.DurationSeconds),
		CreatedAt:       o.now(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.VideoJob{}, ErrClosed
	}
	// a source gets at most one video; only a failed one may be retried
	if prevID, ok := o.bySource[source.ID]; ok {
		if prev, found := o.jobs[prevID]; found && prev.Status != domain.JobStatusFailed {
			o.mu.Unlock()
			return domain.VideoJob{}, fmt.Errorf("%w: job %s already has video %s (%s)", domain.ErrDuplicateOperation, source.ID, prev.ID, prev.Status)
		}
	}
	o.jobs[vj.ID] = vj
	o.bySource[source.ID] = vj.ID
	snapshot := vj.Clone()
	o.wg.Add(1)
	o.mu.Unlock()

	o.publish(source.ID, domain.HistoryPatch{VideoJobID: &vj.ID, VideoStatus: statusPtr(domain.JobStatusPending)})
	metrics.VideoSubmitted()
	o.logger.Info().Str("video_job_id", vj.ID).Str("job_id", source.ID).Int("duration", vj.DurationSeconds).Msg("video: job submitted")

	go o.run(vj.ID, source.ResultImagePath)
	return snapshot, nil
}

// Enabled reports whether the provider can run jobs at all. Providers that
// cannot tell are assumed ready.
func (o *Orchestrator) Enabled() bool {
	if c, ok := o.opts.Provider.(interface{ HasCredentials() bool }); ok {
		return c.HasCredentials()
	}
	return true
}

// Restore rebuilds video jobs recorded in history by a previous process so
// they can still be polled. Jobs that were still running are marked failed.
// Call it before serving.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	if o.opts.History == nil {
		return 0, nil
	}
	msg := domain.ErrInterrupted.Error()
	n := 0
	err := domain.WalkHistory(ctx, o.opts.History, func(rec domain.HistoryRecord) error {
		if rec.VideoJobID == "" {
			return nil
		}
		vj := &domain.VideoJob{
			ID:              rec.VideoJobID,
			SourceJobID:     rec.JobID,
			Status:          rec.VideoStatus,
			OutputVideoPath: rec.VideoPath,
			CreatedAt:       rec.UpdatedAt,
		}
		switch {
		case !vj.Status.Terminal():
			vj.Status = domain.JobStatusFailed
			vj.Error = msg
			if err := o.opts.History.Update(ctx, rec.JobID, domain.HistoryPatch{VideoStatus: statusPtr(domain.JobStatusFailed)}); err != nil {
				return fmt.Errorf("restore video %s: %w", vj.ID, err)
			}
			o.logger.Warn().Str("video_job_id", vj.ID).Str("job_id", rec.JobID).Msg("video: interrupted job marked failed")
		case vj.Status == domain.JobStatusFailed:
			vj.Error = "video generation failed"
		}
		if vj.Status.Terminal() {
			t := rec.UpdatedAt
			vj.CompletedAt = &t
		}

		o.mu.Lock()
		if _, live := o.jobs[vj.ID]; !live {
			o.jobs[vj.ID] = vj
			if _, seen := o.bySource[rec.JobID]; !seen {
				o.bySource[rec.JobID] = vj.ID
			}
			n++
		}
		o.mu.Unlock()
		return nil
	})
	return n, err
}

// Poll returns a snapshot of the video job.
func (o *Orchestrator) Poll(ctx context.Context, videoJobID string) (domain.VideoJob, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	vj, found := o.jobs[videoJobID]
	if !found {
		return domain.VideoJob{}, domain.ErrNotFound
	}
	return vj.Clone(), nil
}

// Close stops accepting jobs and waits for in-flight ones. When ctx expires
// first, polling loops are cancelled and ctx's error is returned.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func (o *Orchestrator) run(videoJobID, imagePath string) {
	defer o.wg.Done()
	log := o.logger.With().Str("video_job_id", videoJobID).Logger()
	vj := o.snapshot(videoJobID)

	ctx, cancel := context.WithTimeout(o.ctx, o.opts.Timeout)
	defer cancel()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		o.fail(vj, fmt.Errorf("read source image: %w", err))
		return
	}
	taskID, err := o.opts.Provider.Submit(ctx, videoprovider.GenerateRequest{
		Image:           data,
		Prompt:          vj.Prompt,
		DurationSeconds: vj.DurationSeconds,
		RequestID:       videoJobID,
	})
	if err != nil {
		o.fail(vj, o.timeoutOr(ctx, err))
		return
	}
	if err := o.transition(videoJobID, domain.JobStatusProcessing, func(v *domain.VideoJob) {
		v.ProviderTaskID = taskID
	}); err != nil {
		log.Error().Err(err).Msg("video: transition to processing failed")
		return
	}
	o.publish(vj.SourceJobID, domain.HistoryPatch{VideoStatus: statusPtr(domain.JobStatusProcessing)})
	log.Debug().Str("task_id", taskID).Msg("video: polling provider")

	state, err := o.await(ctx, taskID)
	if err != nil {
		o.fail(vj, err)
		return
	}
	if state.Status == domain.JobStatusFailed {
		o.fail(vj, errors.New(state.Message))
		return
	}

	body, err := o.opts.Provider.Download(ctx, state.VideoURL)
	if err != nil {
		o.fail(vj, o.timeoutOr(ctx, err))
		return
	}
	outPath, err := o.opts.Outputs.WriteFrom(ctx, "video_"+videoJobID+".mp4", body)
	body.Close()
	if err != nil {
		o.fail(vj, fmt.Errorf("store video: %w", err))
		return
	}

	if err := o.transition(videoJobID, domain.JobStatusSucceeded, func(v *domain.VideoJob) {
		v.OutputVideoPath = outPath
	}); err != nil {
		log.Error().Err(err).Msg("video: transition to succeeded failed")
		return
	}
	o.publish(vj.SourceJobID, domain.HistoryPatch{
		VideoJobID:  &vj.ID,
		VideoPath:   &outPath,
		VideoStatus: statusPtr(domain.JobStatusSucceeded),
	})
	metrics.VideoFinished(string(domain.JobStatusSucceeded))
	log.Info().Str("task_id", taskID).Str("output", outPath).Msg("video: job succeeded")
}

// await polls the provider on a fixed interval until the task reaches a
// terminal status or ctx expires.
func (o *Orchestrator) await(ctx context.Context, taskID string) (videoprovider.TaskState, error) {
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return videoprovider.TaskState{}, o.timeoutOr(ctx, ctx.Err())
		case <-ticker.C:
		}
		state, err := o.opts.Provider.Poll(ctx, taskID)
		if err != nil {
			return videoprovider.TaskState{}, o.timeoutOr(ctx, err)
		}
		metrics.VideoPolled(string(state.Status))
		if state.Status.Terminal() {
			return state, nil
		}
	}
}

// timeoutOr replaces err with the loop timeout message when the overall
// deadline is what stopped the call.
func (o *Orchestrator) timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("video generation timed out after %s", o.opts.Timeout)
	}
	return err
}

func (o *Orchestrator) snapshot(videoJobID string) domain.VideoJob {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.jobs[videoJobID].Clone()
}

func (o *Orchestrator) transition(videoJobID string, next domain.JobStatus, mutate func(*domain.VideoJob)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	vj, found := o.jobs[videoJobID]
	if !found {
		return domain.ErrNotFound
	}
	if !vj.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, vj.Status, next)
	}
	if mutate != nil {
		mutate(vj)
	}
	vj.Status = next
	if next.Terminal() {
		t := o.now()
		vj.CompletedAt = &t
	}
	return nil
}

func (o *Orchestrator) fail(vj domain.VideoJob, cause error) {
	msg := cause.Error()
	if msg == "" {
		msg = "video generation failed"
	}
	if err := o.transition(vj.ID, domain.JobStatusFailed, func(v *domain.VideoJob) {
		v.Error = msg
	}); err != nil {
		o.logger.Error().Err(err).Str("video_job_id", vj.ID).Msg("video: transition to failed refused")
		return
	}
	o.publish(vj.SourceJobID, domain.HistoryPatch{VideoJobID: &vj.ID, VideoStatus: statusPtr(domain.JobStatusFailed)})
	metrics.VideoFinished(string(domain.JobStatusFailed))
	o.logger.Info().Str("video_job_id", vj.ID).Str("error", msg).Msg("video: job failed")
}

func (o *Orchestrator) publish(jobID string, patch domain.HistoryPatch) {
	if o.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.opts.History.Update(ctx, jobID, patch); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("video: history update failed")
	}
}

// jobIDFromResultRef recovers the job id from a result image reference such
// as /static/outputs/tryon_<id>.png or a full URL to it.
func jobIDFromResultRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	base := path.Base(strings.ReplaceAll(ref, "\\", "/"))
	if !strings.HasPrefix(base, "tryon_") {
		return ""
	}
	id := strings.TrimPrefix(base, "tryon_")
	if ext := path.Ext(id); ext != "" {
		id = strings.TrimSuffix(id, ext)
	}
	return id
}

func statusPtr(s domain.JobStatus) *domain.JobStatus {
	return &s
}
