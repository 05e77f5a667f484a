// Package admission validates inbound job submissions before they reach the
// store. The checks run in a fixed order and the first failure wins; nothing
// is persisted for a rejected request.
package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"happysd/internal/domain"
	"happysd/internal/translate"
)

// recognizedKeys is the full set of fields a submission may carry. Anything
// outside it rejects the whole request.
var recognizedKeys = map[string]bool{
	"apikey":         true,
	"type":           true,
	"prompt":         true,
	"neg_prompt":     true,
	"lang":           true,
	"seed":           true,
	"width":          true,
	"height":         true,
	"guidance_scale": true,
	"steps":          true,
	"scheduler":      true,
	"strength":       true,
	"ref_img":        true,
	"mask_img":       true,
}

// Submission is a decoded /add_job request. present tracks which wire keys
// the client actually sent, since required-key checks care about presence,
// not zero values.
type Submission struct {
	APIKey    string         `json:"apikey"`
	Type      domain.JobType `json:"type"`
	Prompt    string         `json:"prompt"`
	NegPrompt string         `json:"neg_prompt"`
	Language  string         `json:"lang"`
	RefImage  string         `json:"ref_img"`
	MaskImage string         `json:"mask_img"`

	domain.Params

	present map[string]bool
}

// Has reports whether the wire key was present in the request body.
func (s *Submission) Has(key string) bool {
	return s.present[key]
}

// ParseSubmission decodes a request body. Unrecognized keys are recorded, not
// rejected here; the gateway rejects them after authentication so that an
// unknown key never leaks whether an api key is valid.
func ParseSubmission(body []byte) (*Submission, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("admission: decode request: %w", err)
	}
	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("admission: decode request: %w", err)
	}
	sub.present = make(map[string]bool, len(raw))
	for key := range raw {
		sub.present[key] = true
	}
	return &sub, nil
}

func (s *Submission) unknownKeys() bool {
	for key := range s.present {
		if !recognizedKeys[key] {
			return true
		}
	}
	return false
}

// Gateway runs the admission pipeline and inserts accepted jobs.
type Gateway struct {
	jobs       domain.JobStore
	users      domain.UserDirectory
	validate   *validator.Validate
	maxPending int
	logger     zerolog.Logger
}

// New builds a Gateway. maxPending is the fallback pending-job limit for
// accounts without their own quota.
func New(jobs domain.JobStore, users domain.UserDirectory, maxPending int, logger zerolog.Logger) *Gateway {
	return &Gateway{
		jobs:       jobs,
		users:      users,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		maxPending: maxPending,
		logger:     logger,
	}
}

// Admit validates the submission and, on success, inserts the job as pending
// and returns its id. Checks run in order; the first failure is returned and
// the store is never touched for a rejected request.
func (g *Gateway) Admit(ctx context.Context, sub *Submission) (string, error) {
	if !sub.Has("apikey") || sub.APIKey == "" {
		return "", domain.ErrUnauthorized
	}
	account, err := g.users.Validate(ctx, sub.APIKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnauthorized
		}
		return "", fmt.Errorf("admission: validate key: %w", err)
	}

	if sub.unknownKeys() {
		return "", domain.ErrUnrecognizedKeys
	}
	if !sub.Has("type") {
		return "", domain.ErrMissingKeys
	}
	if sub.Type.NeedsPrompt() && !sub.Has("prompt") {
		return "", domain.ErrMissingKeys
	}

	if sub.Type.NeedsReferenceImage() && sub.RefImage == "" {
		return "", domain.ErrMissingRefImage
	}
	if sub.Type.NeedsMaskImage() && sub.MaskImage == "" {
		return "", domain.ErrMissingMaskImage
	}

	lang := ""
	if sub.Has("lang") && sub.Language != "" {
		code, ok := translate.Normalize(sub.Language)
		if !ok {
			return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedLang, sub.Language)
		}
		lang = code
	}

	if err := g.validate.StructCtx(ctx, sub.Params); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBadParams, err)
	}

	limit := account.PendingLimit(g.maxPending)
	pending, err := g.jobs.CountPending(ctx, sub.APIKey)
	if err != nil {
		return "", fmt.Errorf("admission: count pending: %w", err)
	}
	if pending > limit {
		return "", domain.ErrQuotaExceeded
	}

	params := sub.Params
	params.ApplyDefaults()

	job := &domain.Job{
		ID:             uuid.NewString(),
		OwnerKey:       sub.APIKey,
		Type:           sub.Type,
		Prompt:         sub.Prompt,
		NegPrompt:      sub.NegPrompt,
		Language:       lang,
		Params:         params,
		ReferenceImage: sub.RefImage,
		MaskImage:      sub.MaskImage,
	}

	g.logger.Info().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("admitting new job")
	id, err := g.jobs.Insert(ctx, job)
	if err != nil {
		return "", fmt.Errorf("admission: insert job: %w", err)
	}
	return id, nil
}
