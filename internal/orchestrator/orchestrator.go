package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"tryon/internal/assets"
	"tryon/internal/domain"
	"tryon/internal/imaging"
	"tryon/internal/metrics"
	"tryon/internal/providers/image"
	"tryon/internal/storage"
)

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("orchestrator: closed")

// AssetResolver turns a caller reference into a readable local path.
type AssetResolver interface {
	ResolveAs(ctx context.Context, ref, prefix string) (string, error)
}

var _ AssetResolver = (*assets.Resolver)(nil)

// SubmitRequest is the input of Submit.
type SubmitRequest struct {
	UserImageRef  string
	StyleImageRef string
	UserNote      string
	StyleName     string
	StyleID       string
}

// Options wires the orchestrator's collaborators. Identity may be nil to
// disable the identity check.
type Options struct {
	Resolver  AssetResolver
	Outputs   *storage.FileStore
	History   domain.HistoryRepository
	Describer image.Describer
	Generator image.Generator
	Identity  image.IdentityChecker
	Logger    zerolog.Logger

	MaxConcurrentJobs  int
	DescriptionTimeout time.Duration
	ImageTimeout       time.Duration
	IdentityTimeout    time.Duration
	ComparisonHeight   int

	Now func() time.Time
}

// Orchestrator owns try-on jobs from submission to a terminal status. Each job
// runs in its own goroutine, which is the only writer of that job.
type Orchestrator struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
	sem    *semaphore.Weighted

	mu     sync.RWMutex
	jobs   map[string]*domain.Job
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates opts and returns a ready orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Resolver == nil || opts.Outputs == nil || opts.History == nil || opts.Generator == nil {
		return nil, errors.New("orchestrator: resolver, outputs, history and generator are required")
	}
	if opts.Describer == nil {
		opts.Describer = image.UnavailableDescriber{}
	}
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 4
	}
	if opts.ComparisonHeight <= 0 {
		opts.ComparisonHeight = imaging.DefaultHeight
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger,
		now:    func() time.Time { return now().UTC() },
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		jobs:   make(map[string]*domain.Job),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Submit registers a pending job and schedules it. It never calls a provider.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (domain.Job, error) {
	userRef := strings.TrimSpace(req.UserImageRef)
	styleRef := strings.TrimSpace(req.StyleImageRef)
	if userRef == "" || styleRef == "" {
		return domain.Job{}, fmt.Errorf("%w: user_image_ref and style_image_ref are required", domain.ErrInvalidRequest)
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		Status:        domain.JobStatusPending,
		UserImageRef:  userRef,
		StyleImageRef: styleRef,
		UserNote:      strings.TrimSpace(req.UserNote),
		StyleName:     strings.TrimSpace(req.StyleName),
		StyleID:       strings.TrimSpace(req.StyleID),
		CreatedAt:     o.now(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.Job{}, ErrClosed
	}
	o.jobs[job.ID] = job
	snapshot := job.Clone()
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.opts.History.Append(ctx, domain.RecordFromJob(snapshot)); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("orchestrator: history append failed")
	}
	metrics.JobSubmitted()
	o.logger.Info().Str("job_id", job.ID).Msg("orchestrator: job submitted")

	go o.run(job.ID)
	return snapshot, nil
}

// Poll returns a snapshot of the job. Jobs that are no longer in memory are
// rebuilt from history.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (domain.Job, error) {
	o.mu.RLock()
	job, found := o.jobs[jobID]
	var snapshot domain.Job
	if found {
		snapshot = job.Clone()
	}
	o.mu.RUnlock()
	if found {
		return snapshot, nil
	}

	rec, err := o.opts.History.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, err
	}
	return rec.Job(), nil
}

// Recover fails every history record left pending or processing by a
// previous process. Call it before serving.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	msg := domain.ErrInterrupted.Error()
	failed := domain.JobStatusFailed
	n := 0
	err := domain.WalkHistory(ctx, o.opts.History, func(rec domain.HistoryRecord) error {
		if rec.Status.Terminal() {
			return nil
		}
		o.mu.RLock()
		_, live := o.jobs[rec.JobID]
		o.mu.RUnlock()
		if live {
			return nil
		}
		if err := o.opts.History.Update(ctx, rec.JobID, domain.HistoryPatch{Status: &failed, Error: &msg}); err != nil {
			return fmt.Errorf("recover job %s: %w", rec.JobID, err)
		}
		n++
		o.logger.Warn().Str("job_id", rec.JobID).Str("was", string(rec.Status)).Msg("orchestrator: interrupted job marked failed")
		return nil
	})
	return n, err
}

// Close stops accepting jobs and waits for in-flight ones. When ctx expires
// first, running jobs are cancelled and ctx's error is returned.
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

func (o *Orchestrator) run(jobID string) {
	defer o.wg.Done()
	log := o.logger.With().Str("job_id", jobID).Logger()
	job := o.snapshot(jobID)
	ctx := o.ctx

	// references resolve before a slot is taken
	userPath, err := o.opts.Resolver.ResolveAs(ctx, job.UserImageRef, "user_"+jobID)
	if err == nil {
		var stylePath string
		stylePath, err = o.opts.Resolver.ResolveAs(ctx, job.StyleImageRef, "style_"+jobID)
		job.ResolvedStylePath = stylePath
	}
	job.ResolvedUserPath = userPath
	if err != nil {
		log.Warn().Err(err).Str("stage", domain.StageResolve).Msg("orchestrator: asset resolution failed")
		o.fail(jobID, domain.StageResolve, err)
		return
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(jobID, domain.StageResolve, fmt.Errorf("job cancelled before start: %w", err))
		return
	}
	metrics.JobStarted()
	defer func() {
		metrics.JobReleased()
		o.sem.Release(1)
	}()

	if err := o.transition(jobID, domain.JobStatusProcessing, func(j *domain.Job) {
		j.ResolvedUserPath = userPath
		j.ResolvedStylePath = job.ResolvedStylePath
	}); err != nil {
		log.Error().Err(err).Msg("orchestrator: transition to processing failed")
		return
	}
	o.publish(jobID, domain.HistoryPatch{
		Status:         statusPtr(domain.JobStatusProcessing),
		UserImagePath:  &userPath,
		StyleImagePath: &job.ResolvedStylePath,
	})

	user, err := image.LoadSource(userPath)
	if err != nil {
		o.fail(jobID, domain.StageImage, err)
		return
	}
	style, err := image.LoadSource(job.ResolvedStylePath)
	if err != nil {
		o.fail(jobID, domain.StageImage, err)
		return
	}

	desc := runStage(ctx, domain.StageDescription, o.opts.DescriptionTimeout,
		degraded[string],
		func(ctx context.Context) (string, error) {
			return o.opts.Describer.Describe(ctx, image.DescribeRequest{JobID: jobID, User: user, Style: style, UserNote: job.UserNote})
		})
	description := ""
	if desc.Kind == Ok {
		description = desc.Value
	} else {
		log.Warn().Err(desc.Err).Str("stage", domain.StageDescription).Msg("orchestrator: stage degraded")
		o.diagnose(jobID, domain.StageDescription, desc.Err)
	}

	gen := runStage(ctx, domain.StageImage, o.opts.ImageTimeout,
		fatal[image.Result],
		func(ctx context.Context) (image.Result, error) {
			return o.opts.Generator.GenerateTryOn(ctx, image.TryOnRequest{
				JobID:       jobID,
				User:        user,
				Style:       &style,
				Description: description,
				UserNote:    job.UserNote,
			})
		})
	if gen.Kind != Ok {
		log.Warn().Err(gen.Err).Str("stage", domain.StageImage).Msg("orchestrator: stage failed")
		o.fail(jobID, domain.StageImage, gen.Err)
		return
	}

	resultPath, err := o.opts.Outputs.Write(ctx, "tryon_"+jobID+assets.ExtensionForMIME(gen.Value.MIME), gen.Value.Data)
	if err != nil {
		o.fail(jobID, domain.StageImage, fmt.Errorf("store result image: %w", err))
		return
	}
	comparisonPath := o.writeComparison(ctx, jobID, userPath, resultPath)

	if err := o.transition(jobID, domain.JobStatusSucceeded, func(j *domain.Job) {
		j.Description = description
		j.ResultImagePath = resultPath
		j.ComparisonImagePath = comparisonPath
	}); err != nil {
		log.Error().Err(err).Msg("orchestrator: transition to succeeded failed")
		return
	}
	o.publish(jobID, domain.HistoryPatch{
		Status:              statusPtr(domain.JobStatusSucceeded),
		ResultImagePath:     &resultPath,
		ComparisonImagePath: &comparisonPath,
		Description:         &description,
	})
	metrics.JobFinished(string(domain.JobStatusSucceeded))
	log.Info().Str("result", resultPath).Msg("orchestrator: job succeeded")

	o.checkIdentity(ctx, jobID, user, resultPath, gen.Value)
}

// writeComparison renders the side-by-side image. Failures only cost the
// comparison path.
func (o *Orchestrator) writeComparison(ctx context.Context, jobID, userPath, resultPath string) string {
	started := time.Now()
	data, err := imaging.ComparisonJPEG(userPath, resultPath, o.opts.ComparisonHeight, imaging.DefaultGap)
	if err == nil {
		var p string
		p, err = o.opts.Outputs.Write(ctx, "compare_"+jobID+".jpg", data)
		if err == nil {
			metrics.ObserveStage(domain.StageComparison, Ok.String(), time.Since(started))
			return p
		}
	}
	metrics.ObserveStage(domain.StageComparison, Degraded.String(), time.Since(started))
	o.logger.Warn().Err(err).Str("job_id", jobID).Str("stage", domain.StageComparison).Msg("orchestrator: comparison image skipped")
	o.diagnose(jobID, domain.StageComparison, err)
	return ""
}

// checkIdentity attaches an advisory note. It never changes the status.
func (o *Orchestrator) checkIdentity(ctx context.Context, jobID string, user image.SourceImage, resultPath string, result image.Result) {
	if o.opts.Identity == nil {
		return
	}
	res := runStage(ctx, domain.StageIdentity, o.opts.IdentityTimeout,
		degraded[string],
		func(ctx context.Context) (string, error) {
			return o.opts.Identity.CompareIdentity(ctx, image.IdentityRequest{
				JobID:  jobID,
				User:   user,
				Result: image.SourceImage{Path: resultPath, MIME: result.MIME, Data: result.Data},
			})
		})
	if res.Kind != Ok {
		o.logger.Warn().Err(res.Err).Str("job_id", jobID).Str("stage", domain.StageIdentity).Msg("orchestrator: stage degraded")
		o.diagnose(jobID, domain.StageIdentity, res.Err)
		return
	}
	note := strings.TrimSpace(res.Value)
	if note == "" {
		return
	}
	o.mu.Lock()
	if j, found := o.jobs[jobID]; found {
		j.IdentityNote = note
	}
	o.mu.Unlock()
	o.publish(jobID, domain.HistoryPatch{IdentityNote: &note})
}

func (o *Orchestrator) snapshot(jobID string) domain.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.jobs[jobID].Clone()
}

// transition moves the job to next and applies mutate under the registry
// lock. Backward or repeated transitions are refused.
func (o *Orchestrator) transition(jobID string, next domain.JobStatus, mutate func(*domain.Job)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, found := o.jobs[jobID]
	if !found {
		return domain.ErrNotFound
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, next)
	}
	if mutate != nil {
		mutate(j)
	}
	j.Status = next
	if next.Terminal() {
		t := o.now()
		j.CompletedAt = &t
	}
	return nil
}

// fail records cause verbatim as the job's error. A failed job always
// carries a message.
func (o *Orchestrator) fail(jobID, stage string, cause error) {
	msg := ""
	if cause != nil {
		msg = strings.TrimSpace(cause.Error())
	}
	if msg == "" {
		msg = "try-on failed at stage " + stage
	}
	if err := o.transition(jobID, domain.JobStatusFailed, func(j *domain.Job) {
		j.Error = msg
	}); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("orchestrator: transition to failed refused")
		return
	}
	o.publish(jobID, domain.HistoryPatch{Status: statusPtr(domain.JobStatusFailed), Error: &msg})
	metrics.JobFinished(string(domain.JobStatusFailed))
	o.logger.Info().Str("job_id", jobID).Str("stage", stage).Str("error", msg).Msg("orchestrator: job failed")
}

func (o *Orchestrator) diagnose(jobID, stage string, cause error) {
	if cause == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if j, found := o.jobs[jobID]; found {
		j.Diagnostics = append(j.Diagnostics, domain.Diagnostic{Stage: stage, Message: cause.Error(), At: o.now()})
	}
}

// publish mirrors a change into the history store. History failures are
// logged; the in-memory job stays authoritative.
func (o *Orchestrator) publish(jobID string, patch domain.HistoryPatch) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.opts.History.Update(ctx, jobID, patch); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: history update failed")
	}
}

func statusPtr(s domain.JobStatus) *domain.JobStatus {
	return &s
}
