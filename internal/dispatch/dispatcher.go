// Package dispatch runs the single-instance worker loop: poll for the oldest
// pending job, mark it running, execute it, record the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"happysd/internal/domain"
	"happysd/internal/imaging"
	"happysd/internal/runner"
	"happysd/internal/translate"
)

// Prompt suffixes appended to every text-to-image and image-to-image run.
// Inpainting and restoration jobs are left untouched.
const (
	promptSuffix = "RAW photo, (high detailed skin:1.2), 8k uhd, dslr, high quality, film grain, Fujifilm XT3"

	negPromptSuffix = "(deformed iris, deformed pupils:1.4), worst quality, low quality, jpeg artifacts, duplicate, morbid, mutilated, extra fingers, mutated hands, poorly drawn hands, poorly drawn face, mutation, deformed, blurry, dehydrated, bad anatomy, bad proportions, extra limbs, cloned face, disfigured, gross proportions, malformed limbs, missing arms, missing legs, extra arms, extra legs, fused fingers, too many fingers, long neck"
)

const (
	statusWriteAttempts = 3
	statusWriteBackoff  = 500 * time.Millisecond
)

// Options configures a Dispatcher.
type Options struct {
	Jobs       domain.JobStore
	Runners    runner.Registry
	Translator translate.Translator
	// PollInterval is the sleep between queue polls; defaults to one second.
	PollInterval time.Duration
	// RunTimeout bounds a single runner call; zero disables the bound.
	RunTimeout time.Duration
	Logger     zerolog.Logger
}

// Dispatcher owns the worker loop. Exactly one instance runs against a given
// database; the store's cross-process lock protects writes, not scheduling.
type Dispatcher struct {
	jobs         domain.JobStore
	runners      runner.Registry
	translator   translate.Translator
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       zerolog.Logger
}

// New builds a Dispatcher from options, applying defaults.
func New(opts Options) *Dispatcher {
	translator := opts.Translator
	if translator == nil {
		translator = translate.Nop{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		jobs:         opts.Jobs,
		runners:      opts.Runners,
		translator:   translator,
		pollInterval: pollInterval,
		runTimeout:   opts.RunTimeout,
		logger:       opts.Logger,
	}
}

// Run polls until ctx is cancelled. Cancellation between iterations is a
// clean stop; cancellation mid-run marks the in-flight job failed before
// returning so no job is ever stranded in running.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.logger.Info().Dur("poll_interval", d.pollInterval).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("dispatcher stopped")
			return nil
		case <-ticker.C:
		}

		job, err := d.jobs.NextPending(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			d.logger.Error().Err(err).Msg("poll queue")
			continue
		}

		if err := d.runOne(ctx, job); err != nil {
			if ctx.Err() != nil {
				d.logger.Warn().Str("job_id", job.ID).Msg("run interrupted by shutdown")
				d.markFailed(job.ID)
				return nil
			}
			d.logger.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
			d.markFailed(job.ID)
		}
	}
}

// RunOnce processes at most one pending job; used by tests and by one-shot
// invocations. Reports whether a job was found.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	job, err := d.jobs.NextPending(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := d.runOne(ctx, job); err != nil {
		d.markFailed(job.ID)
		return true, err
	}
	return true, nil
}

func (d *Dispatcher) runOne(ctx context.Context, job *domain.Job) error {
	if err := d.jobs.Update(ctx, job.ID, domain.PatchStatus(domain.JobStatusRunning)); err != nil {
		return fmt.Errorf("dispatch: mark running: %w", err)
	}

	req, err := d.buildRequest(ctx, job)
	if err != nil {
		return err
	}

	runCtx := ctx
	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	d.logger.Info().Str("job_id", job.ID).Str("type", string(job.Type)).Int64("seed", req.Seed).Msg("running job")
	result, err := d.runners.Dispatch(runCtx, *req)
	if err != nil {
		return fmt.Errorf("dispatch: run: %w", err)
	}

	done := domain.JobStatusDone
	img := imaging.Encode(result.ImagePNG, "png")
	patch := domain.Patch{
		Status:      &done,
		ResultImage: &img,
		Seed:        &result.Seed,
		Width:       &result.Width,
		Height:      &result.Height,
		Steps:       &result.Steps,
	}
	if result.ModelName != "" {
		patch.BaseModel = &result.ModelName
	}
	if err := d.jobs.Update(ctx, job.ID, patch); err != nil {
		return fmt.Errorf("dispatch: record result: %w", err)
	}
	d.logger.Info().Str("job_id", job.ID).Msg("job done")
	return nil
}

// buildRequest resolves prompts (translation, quality suffixes) and decodes
// attachments into the runner's wire form.
func (d *Dispatcher) buildRequest(ctx context.Context, job *domain.Job) (*runner.Request, error) {
	prompt := job.Prompt
	negPrompt := job.NegPrompt

	if !translate.IsEnglish(job.Language) {
		d.logger.Info().Str("job_id", job.ID).Str("lang", job.Language).Msg("translating prompt")
		translated, err := d.translator.Translate(ctx, prompt, job.Language)
		if err != nil {
			return nil, fmt.Errorf("dispatch: translate prompt: %w", err)
		}
		prompt = translated
		if negPrompt != "" {
			translated, err = d.translator.Translate(ctx, negPrompt, job.Language)
			if err != nil {
				return nil, fmt.Errorf("dispatch: translate negative prompt: %w", err)
			}
			negPrompt = translated
		}
	}

	if job.Type == domain.JobTypeText2Img || job.Type == domain.JobTypeImg2Img {
		prompt += promptSuffix
		negPrompt += negPromptSuffix
	}

	req := &runner.Request{
		JobID:         job.ID,
		Type:          job.Type,
		Prompt:        prompt,
		NegPrompt:     negPrompt,
		Seed:          job.Params.EffectiveSeed(),
		Width:         job.Params.Width,
		Height:        job.Params.Height,
		GuidanceScale: job.Params.GuidanceScale,
		Steps:         job.Params.Steps,
		Scheduler:     job.Params.Scheduler,
		Strength:      job.Params.Strength,
	}

	if job.ReferenceImage != "" {
		data, err := imaging.Decode(job.ReferenceImage)
		if err != nil {
			return nil, fmt.Errorf("dispatch: decode reference image: %w", err)
		}
		req.RefImage = data
	}
	if job.MaskImage != "" {
		data, err := imaging.Decode(job.MaskImage)
		if err != nil {
			return nil, fmt.Errorf("dispatch: decode mask image: %w", err)
		}
		req.MaskImage = data
	}
	return req, nil
}

// markFailed records the failed status. The write itself retries with
// backoff; losing it would strand the job in running forever.
func (d *Dispatcher) markFailed(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= statusWriteAttempts; attempt++ {
		if err = d.jobs.Update(ctx, id, domain.PatchStatus(domain.JobStatusFailed)); err == nil {
			return
		}
		d.logger.Warn().Err(err).Str("job_id", id).Int("attempt", attempt).Msg("failed-status write")
		time.Sleep(statusWriteBackoff * time.Duration(attempt))
	}
	d.logger.Error().Err(err).Str("job_id", id).Msg("giving up on failed-status write")
}
