package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"happysd/internal/admission"
	"happysd/internal/domain"
)

const randomSampleLimit = 50

// AddJob runs the admission pipeline and enqueues the job.
//
// Status mapping: key failures are a bare 401, quota is 500, every other
// validation failure is 404 with a msg envelope.
func (a *App) AddJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		a.msg(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	sub, err := admission.ParseSubmission(body)
	if err != nil {
		a.msg(w, http.StatusBadRequest, "malformed request body")
		return
	}

	id, err := a.Gateway.Admit(r.Context(), sub)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			a.unauthorized(w)
		case errors.Is(err, domain.ErrQuotaExceeded):
			a.msg(w, http.StatusInternalServerError, "too many jobs in queue, please wait or cancel some")
		case errors.Is(err, domain.ErrUnrecognizedKeys),
			errors.Is(err, domain.ErrMissingKeys),
			errors.Is(err, domain.ErrMissingRefImage),
			errors.Is(err, domain.ErrMissingMaskImage),
			errors.Is(err, domain.ErrUnsupportedLang),
			errors.Is(err, domain.ErrBadParams):
			a.msg(w, http.StatusNotFound, err.Error())
		default:
			a.Logger.Error().Err(err).Msg("add_job")
			a.msg(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	a.json(w, http.StatusOK, map[string]string{"msg": "", "uuid": id})
}

type jobRef struct {
	APIKey string `json:"apikey"`
	UUID   string `json:"uuid"`
}

// authenticate decodes the body and resolves the api key. A nil account
// means the 401 was already written.
func (a *App) authenticate(w http.ResponseWriter, r *http.Request) (*jobRef, *domain.Account) {
	var ref jobRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil || ref.APIKey == "" {
		a.unauthorized(w)
		return nil, nil
	}
	account, err := a.Users.Validate(r.Context(), ref.APIKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.Logger.Error().Err(err).Msg("validate key")
		}
		a.unauthorized(w)
		return nil, nil
	}
	return &ref, account
}

// CancelJob removes the caller's job while it is still pending.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	ref, account := a.authenticate(w, r)
	if account == nil {
		return
	}
	if ref.UUID == "" {
		a.msg(w, http.StatusNotFound, "missing uuid")
		return
	}

	a.Logger.Info().Str("job_id", ref.UUID).Msg("cancelling job")
	removed, err := a.Jobs.Delete(r.Context(), ref.UUID, ref.APIKey, domain.JobStatusPending)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", ref.UUID).Msg("cancel_job")
		a.msg(w, http.StatusInternalServerError, "internal error")
		return
	}
	if removed {
		a.msg(w, http.StatusOK, fmt.Sprintf("job with uuid %s removed", ref.UUID))
		return
	}

	jobs, err := a.Jobs.Get(r.Context(), domain.Filter{ID: ref.UUID, OwnerKey: ref.APIKey})
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", ref.UUID).Msg("cancel_job lookup")
		a.msg(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(jobs) > 0 {
		a.msg(w, http.StatusMethodNotAllowed,
			fmt.Sprintf("job %s is not in pending state, unable to cancel", ref.UUID))
		return
	}
	a.msg(w, http.StatusNotFound, fmt.Sprintf("unable to find the job with uuid %s", ref.UUID))
}

// GetJobs returns the caller's jobs, narrowed to one when a uuid is given.
func (a *App) GetJobs(w http.ResponseWriter, r *http.Request) {
	ref, account := a.authenticate(w, r)
	if account == nil {
		return
	}

	filter := domain.Filter{OwnerKey: ref.APIKey}
	if ref.UUID != "" {
		filter.ID = ref.UUID
	}
	jobs, err := a.Jobs.Get(r.Context(), filter)
	if err != nil {
		a.Logger.Error().Err(err).Msg("get_jobs")
		a.msg(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// RandomJobs serves an anonymous sample of finished work. No auth.
func (a *App) RandomJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Jobs.RandomSample(r.Context(), randomSampleLimit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("random_jobs")
		a.msg(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs})
}
