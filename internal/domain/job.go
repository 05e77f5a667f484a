package domain

import (
	"encoding/json"
	"math/rand"
	"time"
)

// JobType enumerates supported generation job categories. The values are the
// wire protocol's short names and double as the stored column values.
type JobType string

const (
	JobTypeText2Img    JobType = "txt"
	JobTypeImg2Img     JobType = "img"
	JobTypeInpainting  JobType = "inpaint"
	JobTypeRestoration JobType = "restore"
)

// KnownType reports whether t is one of the supported job types.
func KnownType(t JobType) bool {
	switch t {
	case JobTypeText2Img, JobTypeImg2Img, JobTypeInpainting, JobTypeRestoration:
		return true
	}
	return false
}

// NeedsPrompt reports whether the job type requires a prompt at admission.
// Restoration operates on the reference image alone.
func (t JobType) NeedsPrompt() bool {
	return t != JobTypeRestoration
}

// NeedsReferenceImage reports whether the job type requires ref_img.
func (t JobType) NeedsReferenceImage() bool {
	switch t {
	case JobTypeImg2Img, JobTypeInpainting, JobTypeRestoration:
		return true
	}
	return false
}

// NeedsMaskImage reports whether the job type requires mask_img.
func (t JobType) NeedsMaskImage() bool {
	return t == JobTypeInpainting
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// CanTransition reports whether a status move is legal. Status only moves
// forward: pending -> running -> done|failed. Terminal states never move.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusDone || to == JobStatusFailed
	}
	return false
}

// Generation parameter defaults, applied when the submission omits a field.
const (
	DefaultSeed          int64   = 0
	DefaultWidth         int     = 512
	DefaultHeight        int     = 512
	DefaultGuidanceScale float64 = 25.0
	DefaultSteps         int     = 50
	DefaultScheduler     string  = "Default"
	DefaultStrength      float64 = 0.5
)

// Params holds the generation parameters for a job. A zero Seed is the
// "roll a random seed at read time" marker; storage keeps the zero.
type Params struct {
	Seed          int64   `json:"seed"`
	Width         int     `json:"width" validate:"omitempty,min=64,max=2048"`
	Height        int     `json:"height" validate:"omitempty,min=64,max=2048"`
	GuidanceScale float64 `json:"guidance_scale" validate:"omitempty,min=0,max=50"`
	Steps         int     `json:"steps" validate:"omitempty,min=1,max=150"`
	Scheduler     string  `json:"scheduler"`
	Strength      float64 `json:"strength" validate:"omitempty,min=0,max=1"`
}

// DefaultParams returns the parameter set used when a submission carries none.
func DefaultParams() Params {
	return Params{
		Seed:          DefaultSeed,
		Width:         DefaultWidth,
		Height:        DefaultHeight,
		GuidanceScale: DefaultGuidanceScale,
		Steps:         DefaultSteps,
		Scheduler:     DefaultScheduler,
		Strength:      DefaultStrength,
	}
}

// ApplyDefaults fills any unset field with its default value.
func (p *Params) ApplyDefaults() {
	if p.Width == 0 {
		p.Width = DefaultWidth
	}
	if p.Height == 0 {
		p.Height = DefaultHeight
	}
	if p.GuidanceScale == 0 {
		p.GuidanceScale = DefaultGuidanceScale
	}
	if p.Steps == 0 {
		p.Steps = DefaultSteps
	}
	if p.Scheduler == "" {
		p.Scheduler = DefaultScheduler
	}
	if p.Strength == 0 {
		p.Strength = DefaultStrength
	}
}

// EffectiveSeed resolves the seed for one run. A stored zero re-rolls to a
// fresh random 63-bit value on every call.
func (p Params) EffectiveSeed() int64 {
	if p.Seed != 0 {
		return p.Seed
	}
	return rand.Int63()
}

// Job is one unit of submitted generation work and its lifecycle record.
// Image fields hold either a base64 data URI or, once persisted, a file path
// that the store resolves back to a data URI on read.
type Job struct {
	ID       string    `json:"uuid"`
	OwnerKey string    `json:"apikey,omitempty"`
	Type     JobType   `json:"type"`
	Status   JobStatus `json:"status"`
	Priority int       `json:"priority"`

	Prompt    string `json:"prompt,omitempty"`
	NegPrompt string `json:"neg_prompt,omitempty"`
	Language  string `json:"lang,omitempty"`

	Params Params `json:"-"`

	ReferenceImage string `json:"ref_img,omitempty"`
	MaskImage      string `json:"mask_img,omitempty"`

	// Result fields, populated only on completion.
	ResultImage string `json:"img,omitempty"`
	BaseModel   string `json:"base_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON flattens the generation parameters into the job object so the
// wire carries the same short keys the store columns use.
func (j Job) MarshalJSON() ([]byte, error) {
	type alias Job
	return json.Marshal(struct {
		alias
		Seed          int64   `json:"seed"`
		Width         int     `json:"width"`
		Height        int     `json:"height"`
		GuidanceScale float64 `json:"guidance_scale"`
		Steps         int     `json:"steps"`
		Scheduler     string  `json:"scheduler"`
		Strength      float64 `json:"strength"`
	}{
		alias:         alias(j),
		Seed:          j.Params.Seed,
		Width:         j.Params.Width,
		Height:        j.Params.Height,
		GuidanceScale: j.Params.GuidanceScale,
		Steps:         j.Params.Steps,
		Scheduler:     j.Params.Scheduler,
		Strength:      j.Params.Strength,
	})
}

// Patch carries a partial job mutation. Nil fields are left untouched by the
// store; updated_at is refreshed on every call regardless.
type Patch struct {
	Status      *JobStatus
	Prompt      *string
	NegPrompt   *string
	ResultImage *string
	BaseModel   *string
	Seed        *int64
	Width       *int
	Height      *int
	Steps       *int
}

// PatchStatus is shorthand for a status-only patch.
func PatchStatus(s JobStatus) Patch {
	return Patch{Status: &s}
}
