package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	stdimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tryon/internal/assets"
	"tryon/internal/domain"
	"tryon/internal/providers/image"
	"tryon/internal/storage"
)

type memHistory struct {
	mu       sync.Mutex
	records  map[string]domain.HistoryRecord
	statuses []domain.JobStatus
}

func newMemHistory() *memHistory {
	return &memHistory{records: map[string]domain.HistoryRecord{}}
}

func (m *memHistory) Append(ctx context.Context, rec domain.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.JobID]; ok {
		return domain.ErrDuplicateOperation
	}
	m.records[rec.JobID] = rec
	m.statuses = append(m.statuses, rec.Status)
	return nil
}

func (m *memHistory) Update(ctx context.Context, jobID string, patch domain.HistoryPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	patch.Apply(&rec)
	m.records[jobID] = rec
	if patch.Status != nil {
		m.statuses = append(m.statuses, *patch.Status)
	}
	return nil
}

func (m *memHistory) Get(ctx context.Context, jobID string) (domain.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memHistory) List(ctx context.Context, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.HistoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].JobID > all[j].JobID
	})
	_, size, offset := domain.NormalizePage(page, pageSize)
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *memHistory) Delete(ctx context.Context, jobID string) error {
	return nil
}

type stubDescriber struct {
	text string
	err  error
}

func (s stubDescriber) Describe(ctx context.Context, req image.DescribeRequest) (string, error) {
	return s.text, s.err
}

type stubGenerator struct {
	mu       sync.Mutex
	calls    []image.TryOnRequest
	result   image.Result
	err      error
	block    bool
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *stubGenerator) GenerateTryOn(ctx context.Context, req image.TryOnRequest) (image.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.block {
		<-ctx.Done()
		return image.Result{}, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result, s.err
}

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubIdentity struct {
	note string
	err  error
}

func (s stubIdentity) CompareIdentity(ctx context.Context, req image.IdentityRequest) (string, error) {
	return s.note, s.err
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	orch    *Orchestrator
	history *memHistory
	gen     *stubGenerator
	outputs string
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "assets")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "user.png"), pngBytes(t, 40, 80, color.Black), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "style.png"), pngBytes(t, 40, 40, color.White), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	staging, err := storage.NewFileStore(filepath.Join(base, "inputs"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	outputs, err := storage.NewFileStore(filepath.Join(base, "outputs"))
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	resolver, err := assets.NewResolver([]string{root}, staging)
	if err != nil {
		t.Fatalf("NewResolver error: %v", err)
	}
	gen := &stubGenerator{result: image.Result{Data: pngBytes(t, 40, 80, color.RGBA{R: 200, A: 255}), MIME: "image/png"}}
	history := newMemHistory()
	opts := Options{
		Resolver:           resolver,
		Outputs:            outputs,
		History:            history,
		Describer:          stubDescriber{text: "a fitted red jacket"},
		Generator:          gen,
		Identity:           stubIdentity{note: "identity preserved"},
		Logger:             zerolog.Nop(),
		MaxConcurrentJobs:  2,
		DescriptionTimeout: time.Second,
		ImageTimeout:       time.Second,
		IdentityTimeout:    time.Second,
		ComparisonHeight:   60,
	}
	if mutate != nil {
		mutate(&opts)
	}
	orch, err := New(opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return &fixture{orch: orch, history: history, gen: gen, outputs: outputs.BasePath()}
}

// drain waits for every scheduled job to finish.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.orch.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestSubmitReturnsPendingWithoutCallingProviders(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConcurrentJobs = 1 })
	job, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.ID == "" {
		t.Fatalf("job = %+v, want pending with id", job)
	}
	if _, err := f.history.Get(context.Background(), job.ID); err != nil {
		t.Fatalf("history should hold the record: %v", err)
	}
	f.drain(t)
	if f.history.statuses[0] != domain.JobStatusPending {
		t.Fatalf("first persisted status = %s, want pending", f.history.statuses[0])
	}
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t, nil)
	job, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "/static/user.png", StyleImageRef: "style.png", UserNote: "slim"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	f.drain(t)

	got, err := f.orch.Poll(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s (error %q), want succeeded", got.Status, got.Error)
	}
	if got.Description != "a fitted red jacket" {
		t.Fatalf("description = %q", got.Description)
	}
	if got.IdentityNote != "identity preserved" {
		t.Fatalf("identity note = %q", got.IdentityNote)
	}
	if got.ResultImagePath != filepath.Join(f.outputs, "tryon_"+job.ID+".png") {
		t.Fatalf("result path = %q", got.ResultImagePath)
	}
	if _, err := os.Stat(got.ComparisonImagePath); err != nil {
		t.Fatalf("comparison image missing: %v", err)
	}
	if got.CompletedAt == nil {
		t.Fatalf("completed_at should be set")
	}
	if req := f.gen.calls[0]; req.Description != "a fitted red jacket" || req.UserNote != "slim" || req.Style == nil {
		t.Fatalf("generator request = %+v", req)
	}

	rec, _ := f.history.Get(context.Background(), job.ID)
	if rec.Status != domain.JobStatusSucceeded || rec.IdentityNote != "identity preserved" || rec.ResultImagePath == "" {
		t.Fatalf("history record = %+v", rec)
	}
	want := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing, domain.JobStatusSucceeded}
	if fmt.Sprint(f.history.statuses) != fmt.Sprint(want) {
		t.Fatalf("status sequence = %v, want %v", f.history.statuses, want)
	}
}

func TestMissingAssetFailsWithoutProviderCalls(t *testing.T) {
	f := newFixture(t, nil)
	job, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "nope.png"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error != "asset not found: nope.png" {
		t.Fatalf("error = %q, want asset not found message", got.Error)
	}
	if f.gen.callCount() != 0 {
		t.Fatalf("generator should not be called")
	}
	want := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusFailed}
	if fmt.Sprint(f.history.statuses) != fmt.Sprint(want) {
		t.Fatalf("status sequence = %v, want %v", f.history.statuses, want)
	}
}

func TestDescriptionFailureDegrades(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Describer = stubDescriber{err: errors.New("llm quota exceeded")}
	})
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.Description != "" {
		t.Fatalf("description = %q, want empty", got.Description)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Stage != domain.StageDescription || got.Diagnostics[0].Message != "llm quota exceeded" {
		t.Fatalf("diagnostics = %+v", got.Diagnostics)
	}
	if f.gen.calls[0].Description != "" {
		t.Fatalf("generator should get an empty description")
	}
}

func TestImageRejectionIsVerbatim(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.err = fmt.Errorf("%w: prompt blocked (SAFETY)", domain.ErrGenerationRejected)
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error != "generation rejected: prompt blocked (SAFETY)" {
		t.Fatalf("error = %q", got.Error)
	}
	if got.ResultImagePath != "" || got.IdentityNote != "" {
		t.Fatalf("failed job should carry no result: %+v", got)
	}
}

func TestImageStageTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ImageTimeout = 20 * time.Millisecond })
	f.gen.block = true
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed || got.Error != "stage image timed out after 20ms" {
		t.Fatalf("job = %s %q, want timeout failure", got.Status, got.Error)
	}
}

func TestIdentityFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Identity = stubIdentity{err: errors.New("identity model down")} })
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.IdentityNote != "" {
		t.Fatalf("identity note = %q, want empty", got.IdentityNote)
	}
	last := got.Diagnostics[len(got.Diagnostics)-1]
	if last.Stage != domain.StageIdentity {
		t.Fatalf("last diagnostic = %+v, want identity", last)
	}
}

func TestComparisonFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.result = image.Result{Data: []byte("not an image"), MIME: "image/png"}
	f.orch.opts.Identity = nil
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", got.Status)
	}
	if got.ComparisonImagePath != "" {
		t.Fatalf("comparison path = %q, want empty", got.ComparisonImagePath)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Stage != domain.StageComparison {
		t.Fatalf("diagnostics = %+v", got.Diagnostics)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	f.drain(t)
	if _, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "a", StyleImageRef: "b"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestPollFallsBackToHistory(t *testing.T) {
	f := newFixture(t, nil)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = f.history.Append(context.Background(), domain.HistoryRecord{
		JobID:           "old-job",
		Status:          domain.JobStatusSucceeded,
		ResultImagePath: "/out/tryon_old-job.png",
		CreatedAt:       created,
		UpdatedAt:       created.Add(time.Minute),
	})

	got, err := f.orch.Poll(context.Background(), "old-job")
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded || got.ResultImagePath != "/out/tryon_old-job.png" {
		t.Fatalf("job = %+v", got)
	}
	if _, err := f.orch.Poll(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	f.drain(t)
}

func TestPollIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)
	a, _ := f.orch.Poll(context.Background(), job.ID)
	b, _ := f.orch.Poll(context.Background(), job.ID)
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Fatalf("polls differ:\n%+v\n%+v", a, b)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConcurrentJobs = 1; o.Identity = nil })
	f.gen.delay = 20 * time.Millisecond
	for i := 0; i < 4; i++ {
		if _, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"}); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
	}
	f.drain(t)
	if got := f.gen.maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrent generator calls = %d, want 1", got)
	}
	if f.gen.callCount() != 4 {
		t.Fatalf("generator calls = %d, want 4", f.gen.callCount())
	}
}

func TestStageResultConstructors(t *testing.T) {
	if r := ok(3); r.Kind != Ok || r.Value != 3 || r.Err != nil {
		t.Fatalf("ok = %+v", r)
	}
	boom := errors.New("boom")
	if r := degraded[int](boom); r.Kind != Degraded || r.Err != boom {
		t.Fatalf("degraded = %+v", r)
	}
	if r := fatal[int](boom); r.Kind != Fatal || r.Err != boom {
		t.Fatalf("fatal = %+v", r)
	}
	timeout := &stageTimeoutError{stage: "image", timeout: time.Second}
	if !errors.Is(timeout, domain.ErrProviderTransport) {
		t.Fatalf("stage timeout should match ErrProviderTransport")
	}
}

func TestMissingAssetFailsWhileSlotsAreBusy(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.MaxConcurrentJobs = 1
		o.ImageTimeout = 2 * time.Second
		o.Identity = nil
	})
	f.gen.block = true
	if _, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for f.gen.inFlight.Load() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("first job never reached the generator")
		}
		time.Sleep(5 * time.Millisecond)
	}

	job, err := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "missing.jpg"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	var got domain.Job
	for deadline = time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
		got, _ = f.orch.Poll(context.Background(), job.ID)
		if got.Status.Terminal() {
			break
		}
	}
	if got.Status != domain.JobStatusFailed || got.Error != "asset not found: missing.jpg" {
		t.Fatalf("job = %s %q, want failed while the slot is held", got.Status, got.Error)
	}
	if f.gen.inFlight.Load() != 1 {
		t.Fatalf("first job should still hold the slot")
	}
	f.drain(t)
}

func TestFailedJobAlwaysHasMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.err = errors.New("")
	job, _ := f.orch.Submit(context.Background(), SubmitRequest{UserImageRef: "user.png", StyleImageRef: "style.png"})
	f.drain(t)

	got, _ := f.orch.Poll(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed || got.Error == "" {
		t.Fatalf("job = %s %q, want failed with a message", got.Status, got.Error)
	}
	if got.ResultImagePath != "" {
		t.Fatalf("failed job carries a result: %q", got.ResultImagePath)
	}
}

func TestRecoverFailsInterruptedJobs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seed := map[string]domain.JobStatus{
		"crashed-pending":    domain.JobStatusPending,
		"crashed-processing": domain.JobStatusProcessing,
		"done":               domain.JobStatusSucceeded,
	}
	i := 0
	for id, status := range seed {
		i++
		if err := f.history.Append(ctx, domain.HistoryRecord{JobID: id, Status: status, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}
	for n := 0; n < domain.MaxPageSize+5; n++ {
		id := fmt.Sprintf("old-%03d", n)
		_ = f.history.Append(ctx, domain.HistoryRecord{JobID: id, Status: domain.JobStatusFailed, Error: "boom", CreatedAt: base.Add(-time.Duration(n+1) * time.Hour)})
	}
	_ = f.history.Append(ctx, domain.HistoryRecord{JobID: "oldest-running", Status: domain.JobStatusProcessing, CreatedAt: base.Add(-1000 * time.Hour)})

	n, err := f.orch.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if n != 3 {
		t.Fatalf("recovered = %d, want 3", n)
	}
	for _, id := range []string{"crashed-pending", "crashed-processing", "oldest-running"} {
		got, err := f.orch.Poll(ctx, id)
		if err != nil {
			t.Fatalf("Poll(%s) error: %v", id, err)
		}
		if got.Status != domain.JobStatusFailed || got.Error != domain.ErrInterrupted.Error() {
			t.Fatalf("Poll(%s) = %s %q, want failed by restart", id, got.Status, got.Error)
		}
	}
	if got, _ := f.orch.Poll(ctx, "done"); got.Status != domain.JobStatusSucceeded {
		t.Fatalf("succeeded job changed to %s", got.Status)
	}
	f.drain(t)
}
