package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"clipstitch/internal/config"
	"clipstitch/internal/cutter"
	"clipstitch/internal/journal"
	"clipstitch/internal/logging"
	"clipstitch/internal/services"
	"clipstitch/internal/tasks"
)

// ErrScratchBusy reports that another run holds the scratch directory.
var ErrScratchBusy = errors.New("scratch directory in use by another run")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers a transition observer.
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// WithRecorder enables run history.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithTaskFile records the task file path in run history.
func WithTaskFile(path string) Option {
	return func(p *Pipeline) {
		p.taskFile = path
	}
}

// WithRetainScratch overrides the configured scratch retention.
func WithRetainScratch(retain bool) Option {
	return func(p *Pipeline) {
		p.retainScratch = retain
	}
}

// WithPrefetchWorkers overrides the configured prefetch width.
func WithPrefetchWorkers(n int) Option {
	return func(p *Pipeline) {
		p.prefetchWorkers = n
	}
}

// WithRunID fixes the identifier of the next run, so callers can open
// per-run resources before Run starts.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.newRunID = func() string { return id }
		}
	}
}

// Pipeline coordinates fetch, cut and merge for a run.
type Pipeline struct {
	fetcher Fetcher
	cutter  Cutter
	merger  Merger
	logger  *slog.Logger

	scratchDir      string
	retainScratch   bool
	prefetchWorkers int

	observer Observer
	recorder Recorder
	taskFile string
	newRunID func() string
}

// New constructs a Pipeline from its components.
func New(cfg *config.Config, fetcher Fetcher, cut Cutter, merge Merger, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:         fetcher,
		cutter:          cut,
		merger:          merge,
		logger:          logging.NewComponentLogger(logger, "pipeline"),
		scratchDir:      cfg.Paths.ScratchDir,
		retainScratch:   cfg.Pipeline.RetainScratch,
		prefetchWorkers: cfg.Fetch.PrefetchWorkers,
		newRunID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run holds per-invocation state.
type run struct {
	id      string
	total   int
	logger  *slog.Logger
	failed  map[string]error
	clips   []cutter.Clip
	result  Result
	started time.Time
}

// Run processes requests in order and merges the produced clips into
// outputPath. A run that produces no clips succeeds without writing output.
func (p *Pipeline) Run(ctx context.Context, requests []tasks.Request, outputPath string) (Result, error) {
	r := &run{
		id:      p.newRunID(),
		total:   len(requests),
		failed:  make(map[string]error),
		started: time.Now(),
	}
	r.result = Result{RunID: r.id, OutputPath: outputPath, Outcomes: make([]Outcome, 0, len(requests))}
	ctx = services.WithRunID(ctx, r.id)
	r.logger = p.logger.With(logging.String(logging.FieldRunID, r.id))

	if err := p.checkOutputPath(outputPath); err != nil {
		return r.result, err
	}

	release, err := p.acquireScratch()
	if err != nil {
		return r.result, err
	}
	defer release()

	if err := p.resetScratch(); err != nil {
		return r.result, err
	}
	defer p.cleanupScratch(r)

	p.beginRun(ctx, r, outputPath)
	r.logger.InfoContext(ctx, "run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.Int("requests", len(requests)),
		logging.String("output", outputPath),
	)

	p.prefetch(ctx, r, requests)

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			runErr := services.Wrap(services.ErrTransient, "pipeline", "run", "cancelled", err)
			p.finishRun(ctx, r, journal.RunFailed, runErr)
			return r.result, runErr
		}
		outcome := p.process(ctx, r, req)
		r.result.Outcomes = append(r.result.Outcomes, outcome)
		if outcome.State == StateProduced {
			r.clips = append(r.clips, *outcome.Clip)
			r.result.ProducedClipCount++
		} else {
			r.result.SkippedCount++
		}
		p.recordOutcome(ctx, r, outcome)
	}

	if len(r.clips) == 0 {
		logging.WarnWithContext(r.logger, "no clips produced; output not written", "run_empty",
			logging.Int("skipped", r.result.SkippedCount),
			logging.String(logging.FieldImpact, "no output file was created"),
			logging.String(logging.FieldErrorHint, "review skipped requests above for the cause"),
		)
		p.finishRun(ctx, r, journal.RunEmpty, nil)
		return r.result, nil
	}

	if err := p.merger.Merge(services.WithStage(ctx, "merging"), r.clips, outputPath); err != nil {
		logging.ErrorWithContext(r.logger, "merge failed", "merge_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no output file was written"),
			logging.String(logging.FieldErrorHint, "rerun with --retain to inspect the clips and concat manifest"),
		)
		p.finishRun(ctx, r, journal.RunFailed, err)
		return r.result, err
	}

	r.logger.InfoContext(ctx, "run complete",
		logging.String(logging.FieldEventType, "run_completed"),
		logging.Int("produced", r.result.ProducedClipCount),
		logging.Int("skipped", r.result.SkippedCount),
		logging.Duration("elapsed", time.Since(r.started)),
	)
	p.finishRun(ctx, r, journal.RunCompleted, nil)
	return r.result, nil
}

// process walks one request through the state machine.
func (p *Pipeline) process(ctx context.Context, r *run, req tasks.Request) Outcome {
	ctx = services.WithRequestIndex(ctx, req.Index)
	outcome := Outcome{Index: req.Index, SourceRef: req.SourceRef, State: StatePending}
	p.emit(r, outcome, nil)

	if !req.ValidRange() {
		err := fmt.Errorf("%w: end %s is not after start %s", cutter.ErrInvalidRange, req.End, req.Start)
		return p.skip(r, outcome, ReasonInvalidRange, err)
	}

	outcome.State = StateResolving
	p.emit(r, outcome, nil)
	id, err := p.fetcher.Resolve(req.SourceRef)
	if err != nil {
		return p.skip(r, outcome, ReasonInvalidReference, err)
	}
	outcome.SourceID = id
	ctx = services.WithSourceID(ctx, id)

	if prior, ok := r.failed[id]; ok {
		return p.skip(r, outcome, ReasonDownloadError, prior)
	}
	if !p.fetcher.Cached(id) {
		outcome.State = StateFetching
		p.emit(r, outcome, nil)
	}
	entry, err := p.fetcher.EnsureID(services.WithStage(ctx, string(StateFetching)), id)
	if err != nil {
		r.failed[id] = err
		return p.skip(r, outcome, ReasonDownloadError, err)
	}

	outcome.State = StateCutting
	p.emit(r, outcome, nil)
	clip, err := p.cutter.Cut(services.WithStage(ctx, string(StateCutting)), entry, req.Index, req.Start, req.End)
	if err != nil {
		return p.skip(r, outcome, ReasonCutError, err)
	}

	outcome.State = StateProduced
	outcome.Clip = &clip
	p.emit(r, outcome, nil)
	r.logger.InfoContext(ctx, "clip produced",
		logging.String(logging.FieldEventType, "clip_produced"),
		logging.Int(logging.FieldRequestIndex, req.Index),
		logging.String(logging.FieldSourceID, id),
		logging.String("method", string(clip.Method)),
		logging.Duration("duration", clip.Duration),
	)
	return outcome
}

func (p *Pipeline) skip(r *run, outcome Outcome, reason Reason, err error) Outcome {
	stage := outcome.State
	outcome.State = StateSkipped
	outcome.Reason = reason
	outcome.Err = err
	p.emit(r, outcome, err)
	logging.WarnWithContext(r.logger, "request skipped", "request_skipped",
		logging.Int(logging.FieldRequestIndex, outcome.Index),
		logging.String(logging.FieldStage, string(stage)),
		logging.String("source_ref", outcome.SourceRef),
		logging.String("reason", string(reason)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "segment omitted from the output"),
		logging.String(logging.FieldErrorHint, hintFor(reason)),
	)
	return outcome
}

func hintFor(reason Reason) string {
	switch reason {
	case ReasonInvalidRange:
		return "endTime must be after startTime"
	case ReasonInvalidReference:
		return "use a youtube.com or youtu.be link that names a video"
	case ReasonDownloadError:
		return "check the video is available and yt-dlp is up to date"
	case ReasonCutError:
		return "inspect the cached source with ffprobe"
	default:
		return "check logs for details"
	}
}

func (p *Pipeline) emit(r *run, outcome Outcome, err error) {
	r.logger.Debug("request state changed",
		logging.String(logging.FieldEventType, "request_state"),
		logging.Int(logging.FieldRequestIndex, outcome.Index),
		logging.String("source_ref", outcome.SourceRef),
		logging.String(logging.FieldSourceID, outcome.SourceID),
		logging.String(logging.FieldStage, string(outcome.State)),
	)
	if p.observer == nil {
		return
	}
	p.observer(Event{
		Index:     outcome.Index,
		Total:     r.total,
		SourceRef: outcome.SourceRef,
		SourceID:  outcome.SourceID,
		State:     outcome.State,
		Reason:    outcome.Reason,
		Err:       err,
	})
}

// prefetch downloads the distinct missing sources of valid requests
// concurrently. Failures are remembered so the sequential pass skips those
// requests without refetching.
func (p *Pipeline) prefetch(ctx context.Context, r *run, requests []tasks.Request) {
	if p.prefetchWorkers <= 1 {
		return
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, req := range requests {
		if !req.ValidRange() {
			continue
		}
		id, err := p.fetcher.Resolve(req.SourceRef)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup || p.fetcher.Cached(id) {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	r.logger.InfoContext(ctx, "prefetching sources",
		logging.String(logging.FieldEventType, "prefetch_started"),
		logging.Int("sources", len(ids)),
		logging.Int("workers", p.prefetchWorkers),
	)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.prefetchWorkers)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := p.fetcher.EnsureID(services.WithStage(gctx, "prefetch"), id); err != nil {
				mu.Lock()
				r.failed[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// checkOutputPath rejects outputs inside the scratch directory, which is
// purged when the run ends.
func (p *Pipeline) checkOutputPath(outputPath string) error {
	output, err := filepath.Abs(outputPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "resolve output", outputPath, err)
	}
	scratch, err := filepath.Abs(p.scratchDir)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "resolve scratch", p.scratchDir, err)
	}
	rel, err := filepath.Rel(scratch, output)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return services.Wrap(services.ErrValidation, "pipeline", "check output",
			fmt.Sprintf("output %s is inside the scratch directory %s", output, scratch), nil)
	}
	return nil
}

func (p *Pipeline) acquireScratch() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(p.scratchDir), 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "prepare scratch", "cannot create scratch parent", err)
	}
	lock := flock.New(p.scratchDir + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "lock scratch", p.scratchDir, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "lock scratch", p.scratchDir, ErrScratchBusy)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (p *Pipeline) resetScratch() error {
	if err := os.RemoveAll(p.scratchDir); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "reset scratch", p.scratchDir, err)
	}
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "reset scratch", p.scratchDir, err)
	}
	return nil
}

func (p *Pipeline) cleanupScratch(r *run) {
	if p.retainScratch {
		r.logger.Info("scratch retained", logging.String("path", p.scratchDir))
		return
	}
	if err := os.RemoveAll(p.scratchDir); err != nil {
		logging.WarnWithContext(r.logger, "failed to purge scratch", "scratch_cleanup_failed",
			logging.String("path", p.scratchDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "intermediate clips remain on disk until the next run"),
			logging.String(logging.FieldErrorHint, "remove the scratch directory manually"),
		)
	}
}

func (p *Pipeline) beginRun(ctx context.Context, r *run, outputPath string) {
	if p.recorder == nil {
		return
	}
	err := p.recorder.BeginRun(ctx, journal.Run{
		ID:         r.id,
		TaskFile:   p.taskFile,
		OutputPath: outputPath,
		Requests:   r.total,
		StartedAt:  r.started,
	})
	if err != nil {
		p.journalFailed(r, err)
	}
}

func (p *Pipeline) recordOutcome(ctx context.Context, r *run, outcome Outcome) {
	if p.recorder == nil {
		return
	}
	entry := journal.Outcome{
		RunID:     r.id,
		Index:     outcome.Index,
		SourceRef: outcome.SourceRef,
		SourceID:  outcome.SourceID,
		State:     string(outcome.State),
		Reason:    string(outcome.Reason),
		Error:     outcome.Error(),
	}
	if outcome.Clip != nil {
		entry.Method = string(outcome.Clip.Method)
		entry.ClipPath = outcome.Clip.Path
	}
	if err := p.recorder.RecordOutcome(ctx, entry); err != nil {
		p.journalFailed(r, err)
	}
}

func (p *Pipeline) finishRun(ctx context.Context, r *run, status journal.RunStatus, runErr error) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.FinishRun(context.WithoutCancel(ctx), r.id, status, r.result.ProducedClipCount, r.result.SkippedCount, runErr); err != nil {
		p.journalFailed(r, err)
	}
}

func (p *Pipeline) journalFailed(r *run, err error) {
	logging.WarnWithContext(r.logger, "journal write failed", "journal_write_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "run history is incomplete"),
		logging.String(logging.FieldErrorHint, "check journal_path permissions or disable the journal"),
	)
}
